// Command seed-db prepares a fresh database for local development: it runs
// migrations, loads the taxonomy from a JSON file, creates a demo active shop,
// and registers an API key for the shop owner.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keramo/craftmarket/internal/storage/postgres"
)

type taxonomyJSON struct {
	Categories []struct {
		ID            int64  `json:"id"`
		Name          string `json:"name"`
		Subcategories []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"subcategories"`
	} `json:"categories"`
}

func main() {
	var (
		databaseURL  string
		taxonomyFile string
		apiKey       string
		apiKeyPepper string
		ownerUserID  int64
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&taxonomyFile, "taxonomy-file", "db/seed/taxonomy.json", "path to taxonomy JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or MARKET_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or MARKET_API_KEY_PEPPER env)")
	flag.Int64Var(&ownerUserID, "owner-user-id", 1, "user ID that owns the demo shop")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("MARKET_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or MARKET_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("MARKET_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, taxonomyFile, apiKey, apiKeyPepper, ownerUserID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, taxonomyFile, apiKey, pepper string, ownerUserID int64) error {
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

	if err := seedTaxonomy(ctx, pool, taxonomyFile); err != nil {
		return errors.Wrap(err, "seed taxonomy")
	}

	shopID, err := seedDemoShop(ctx, pool, ownerUserID)
	if err != nil {
		return errors.Wrap(err, "seed demo shop")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper, ownerUserID); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	slog.Info("demo shop ready", slog.Int64("shop_id", shopID), slog.Int64("owner_user_id", ownerUserID))

	return nil
}

func seedTaxonomy(ctx context.Context, pool *pgxpool.Pool, taxonomyFile string) error {
	slog.Info("reading taxonomy file", slog.String("path", taxonomyFile))

	data, err := os.ReadFile(taxonomyFile)
	if err != nil {
		return errors.Wrap(err, "read taxonomy file")
	}

	var taxonomy taxonomyJSON
	if err := json.Unmarshal(data, &taxonomy); err != nil {
		return errors.Wrap(err, "parse taxonomy JSON")
	}

	slog.Info("upserting categories", slog.Int("count", len(taxonomy.Categories)))

	for _, c := range taxonomy.Categories {
		if _, err := pool.Exec(ctx, `
			INSERT INTO categories (id, name)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, deleted = FALSE
		`, c.ID, c.Name); err != nil {
			return errors.Wrapf(err, "upsert category %d", c.ID)
		}

		for _, s := range c.Subcategories {
			if _, err := pool.Exec(ctx, `
				INSERT INTO subcategories (id, category_id, name)
				VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET
					category_id = EXCLUDED.category_id,
					name        = EXCLUDED.name,
					deleted     = FALSE
			`, s.ID, c.ID, s.Name); err != nil {
				return errors.Wrapf(err, "upsert subcategory %d", s.ID)
			}
		}

		slog.Info("upserted category",
			slog.Int64("id", c.ID),
			slog.String("name", c.Name),
			slog.Int("subcategories", len(c.Subcategories)),
		)
	}

	// Serial sequences must not hand out IDs the seed file already claimed.
	for _, stmt := range []string{
		`SELECT setval('categories_id_seq', (SELECT COALESCE(MAX(id), 1) FROM categories))`,
		`SELECT setval('subcategories_id_seq', (SELECT COALESCE(MAX(id), 1) FROM subcategories))`,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "advance sequence")
		}
	}

	return nil
}

func seedDemoShop(ctx context.Context, pool *pgxpool.Pool, ownerUserID int64) (int64, error) {
	slog.Info("seeding demo shop")

	var shopID int64
	err := pool.QueryRow(ctx, `
		SELECT id FROM shops WHERE owner_user_id = $1 AND NOT deleted LIMIT 1
	`, ownerUserID).Scan(&shopID)
	if err == nil {
		return shopID, nil
	}

	err = pool.QueryRow(ctx, `
		INSERT INTO shops (owner_user_id, name, status)
		VALUES ($1, 'Demo Craft Shop', 'active')
		RETURNING id
	`, ownerUserID).Scan(&shopID)
	if err != nil {
		return 0, errors.Wrap(err, "insert demo shop")
	}

	return shopID, nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string, ownerUserID int64) error {
	slog.Info("seeding owner API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, name, user_id, scopes)
		VALUES ($1, $2, 'Demo shop owner key', $3, $4)
		ON CONFLICT (key_hash) DO UPDATE SET user_id = EXCLUDED.user_id
	`, uuid.New(), keyHash, ownerUserID, []string{"manage_products"}); err != nil {
		return errors.Wrap(err, "upsert owner API key")
	}

	slog.Info("upserted API key", slog.Int64("user_id", ownerUserID))

	return nil
}
