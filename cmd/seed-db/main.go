package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
	"github.com/cartloom/coupon-engine/internal/domain/order"
	"github.com/cartloom/coupon-engine/internal/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or COUPONS_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COUPONS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("COUPONS_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or COUPONS_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COUPONS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedDemoCart(ctx, pool); err != nil {
		return errors.Wrap(err, "seed demo cart")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCoupons(ctx context.Context, pool postgres.Querier) error {
	slog.Info("seeding demo coupons")

	coupons := postgres.NewCouponStore(pool)
	stacks := postgres.NewStackStore(pool)

	tenOff := &coupon.Rule{
		ID:          uuid.New().String(),
		Kind:        coupon.KindOrder,
		Code:        "TENOFF",
		Title:       "$10 off orders over $50",
		Amount:      decimal.NewFromInt(10),
		MinSubTotal: decimal.NewFromInt(50),
	}
	save20 := &coupon.Rule{
		ID:         uuid.New().String(),
		Kind:       coupon.KindOrder,
		Code:       "SAVE20",
		Title:      "20% off, up to $15",
		Percentage: decimal.RequireFromString("0.2"),
		MaxValue:   decimal.NewFromInt(15),
	}
	shoeDeal := &coupon.Rule{
		ID:            uuid.New().String(),
		Kind:          coupon.KindItem,
		Code:          "SHOEDEAL",
		Title:         "Half price shoes when you buy two pairs",
		Percentage:    decimal.RequireFromString("0.5"),
		LimitUses:     true,
		RemainingUses: 100,
		MinQuantity:   2,
		Purchasables: []order.PurchasableRef{
			{Class: "Product", ID: "shoe-classic"},
			{Class: "Product", ID: "shoe-runner"},
		},
	}

	for _, rule := range []*coupon.Rule{tenOff, save20, shoeDeal} {
		if err := coupons.Create(ctx, rule); err != nil {
			var res *coupon.Result
			if errors.As(err, &res) && res.Has(coupon.CodeDuplicate) {
				// Re-run: reuse the existing row's ID so pairing still works.
				existing, lookupErr := coupons.LookupByCode(ctx, rule.Code)
				if lookupErr != nil {
					return errors.Wrapf(lookupErr, "lookup existing coupon %s", rule.Code)
				}
				rule.ID = existing.ID
				slog.Info("coupon already seeded", slog.String("code", rule.Code))
				continue
			}
			return errors.Wrapf(err, "create coupon %s", rule.Code)
		}
		slog.Info("created coupon", slog.String("code", rule.Code), slog.String("title", rule.Title))
	}

	// TENOFF may combine with the shoe deal; everything else is exclusive.
	if err := stacks.AddPair(ctx, tenOff.ID, shoeDeal.ID); err != nil {
		return errors.Wrap(err, "pair coupons")
	}
	slog.Info("paired coupons", slog.String("a", "TENOFF"), slog.String("b", "SHOEDEAL"))

	return nil
}

func seedDemoCart(ctx context.Context, pool postgres.Querier) error {
	orders := postgres.NewOrderStore(pool)

	ord, err := orders.Create(ctx, false, []order.ItemSpec{
		{
			Purchasable: order.PurchasableRef{Class: "Product", ID: "shoe-classic"},
			Quantity:    2,
			SubTotal:    decimal.RequireFromString("119.90"),
		},
		{
			Purchasable: order.PurchasableRef{Class: "Product", ID: "tshirt-basic"},
			Quantity:    1,
			SubTotal:    decimal.RequireFromString("24.50"),
		},
	})
	if err != nil {
		return errors.Wrap(err, "create demo cart")
	}

	slog.Info("created demo cart",
		slog.String("order_id", ord.ID()),
		slog.String("subtotal", ord.SubTotal().StringFixed(2)),
	)
	return nil
}

func seedAPIKey(ctx context.Context, pool postgres.Querier, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	apikeys := postgres.NewAPIKeyStore(pool)
	if err := apikeys.Insert(ctx, "default", keyHash, "Default test key"); err != nil {
		return errors.Wrap(err, "insert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default test key"))

	return nil
}
