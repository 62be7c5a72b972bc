package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-admin/internal/domain/catalog"
	"github.com/xenking/delivery-admin/internal/handler"
	"github.com/xenking/delivery-admin/internal/storage/postgres"
)

type catalogFile struct {
	Restaurants []restaurantJSON `json:"restaurants"`
}

type restaurantJSON struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	Name        string          `json:"name"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	PrepMinutes int             `json:"prepMinutes"`
	Menu        []menuItemJSON  `json:"menu"`
}

type menuItemJSON struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Price    decimal.Decimal   `json:"price"`
	Variants []catalog.Variant `json:"variants"`
}

const (
	upsertRestaurantSQL = `INSERT INTO restaurants (id, tenant_id, name, delivery_fee, prep_minutes, active)
	VALUES ($1, $2, $3, $4, $5, TRUE)
	ON CONFLICT (id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name,
		delivery_fee = EXCLUDED.delivery_fee, prep_minutes = EXCLUDED.prep_minutes, active = TRUE`

	upsertMenuItemSQL = `INSERT INTO menu_items (id, restaurant_id, name, category, price, variants, available)
	VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	ON CONFLICT (restaurant_id, id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
		price = EXCLUDED.price, variants = EXCLUDED.variants, available = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, tenant_id, key_hash, name, scopes, active)
	VALUES ($1, $2, $3, $4, $5, TRUE)
	ON CONFLICT (id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, key_hash = EXCLUDED.key_hash,
		name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE`
)

func main() {
	var (
		databaseURL  string
		catalogPath  string
		apiKey       string
		apiKeyPepper string
		tenantID     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogPath, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file, optionally gzip-compressed (.json.gz)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or DELIVERY_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or DELIVERY_API_KEY_PEPPER env)")
	flag.StringVar(&tenantID, "tenant", "demo", "tenant the seeded API key acts for")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("DELIVERY_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or DELIVERY_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("DELIVERY_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogPath, tenantID, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogPath, tenantID, apiKey, pepper string) error {
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

	cat, err := readCatalog(catalogPath)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return seedCatalog(ctx, tx, cat)
	}); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if err := seedAPIKey(ctx, pool, tenantID, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// readCatalog decodes a catalog file, decompressing it when the name ends
// in .gz.
func readCatalog(path string) (*catalogFile, error) {
	slog.Info("reading catalog file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip reader")
		}
		defer gz.Close()
		r = gz
	}
	return decodeCatalog(r)
}

func decodeCatalog(r io.Reader) (*catalogFile, error) {
	var cat catalogFile
	if err := json.NewDecoder(r).Decode(&cat); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	for _, rest := range cat.Restaurants {
		if rest.ID == "" || rest.TenantID == "" {
			return nil, errors.Errorf("restaurant %q: id and tenantId are required", rest.Name)
		}
		for _, m := range rest.Menu {
			if m.Price.IsNegative() {
				return nil, errors.Errorf("menu item %s/%s: negative price", rest.ID, m.ID)
			}
		}
	}
	return &cat, nil
}

func seedCatalog(ctx context.Context, tx pgx.Tx, cat *catalogFile) error {
	for _, rest := range cat.Restaurants {
		if _, err := tx.Exec(ctx, upsertRestaurantSQL,
			rest.ID, rest.TenantID, rest.Name, rest.DeliveryFee, rest.PrepMinutes,
		); err != nil {
			return errors.Wrapf(err, "upsert restaurant %s", rest.ID)
		}

		for _, m := range rest.Menu {
			variants := m.Variants
			if variants == nil {
				variants = []catalog.Variant{}
			}
			data, err := json.Marshal(variants)
			if err != nil {
				return errors.Wrapf(err, "marshal variants of %s", m.ID)
			}
			if _, err := tx.Exec(ctx, upsertMenuItemSQL,
				m.ID, rest.ID, m.Name, m.Category, m.Price, data,
			); err != nil {
				return errors.Wrapf(err, "upsert menu item %s/%s", rest.ID, m.ID)
			}
		}

		slog.Info("upserted restaurant",
			slog.String("id", rest.ID),
			slog.String("tenant", rest.TenantID),
			slog.Int("menu_items", len(rest.Menu)),
		)
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, tenantID, apiKey, pepper string) error {
	slog.Info("seeding default API key", slog.String("tenant", tenantID))

	id := "default-" + tenantID
	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		id, tenantID, handler.HashAPIKey(apiKey, []byte(pepper)), "Default key",
		[]string{handler.ScopeOrdersRead, handler.ScopeOrdersWrite},
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", id))

	return nil
}
