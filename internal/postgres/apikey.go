package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/cartloom/coupon-engine/internal/domain/auth"
)

const (
	findAPIKeySQL   = `SELECT id, key_hash, name FROM api_keys WHERE key_hash = $1`
	insertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name) VALUES ($1, $2, $3)
		ON CONFLICT (key_hash) DO NOTHING`
)

var _ auth.Repository = (*APIKeyStore)(nil)

// APIKeyStore implements auth.Repository backed by PostgreSQL.
type APIKeyStore struct {
	db Querier
}

// NewAPIKeyStore returns an APIKeyStore that uses the given querier.
func NewAPIKeyStore(db Querier) *APIKeyStore {
	return &APIKeyStore{db: db}
}

// FindByHash looks up an API key by its HMAC-SHA256 hex hash.
func (s *APIKeyStore) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := s.db.QueryRow(ctx, findAPIKeySQL, hash).Scan(&info.ID, &info.KeyHash, &info.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("api key not found")
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return &info, nil
}

// Insert stores a hashed API key. Used by seeding tooling.
func (s *APIKeyStore) Insert(ctx context.Context, id, hash, name string) error {
	if _, err := s.db.Exec(ctx, insertAPIKeySQL, id, hash, name); err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}
