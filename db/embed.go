// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the DDL for every table the engine owns. It is idempotent
// (CREATE IF NOT EXISTS) and applied at startup.
//
//go:embed migrations/001_schema.sql
var Schema string
