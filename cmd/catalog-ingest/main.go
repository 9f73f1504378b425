// Command catalog-ingest imports legacy product dumps into the catalog.
// Dumps are gzip-compressed CSV files exported per region; the same product
// can appear in several files, so a first pass builds per-file bloom filters
// of shop/SKU pairs to flag cross-file duplicates cheaply before the insert
// pass resolves them exactly.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/keramo/craftmarket/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	batchSize     = 500
)

// legacyRow is one product record from a dump file. CSV columns:
// shop_id,category_id,subcategory_id,title,sku,price
type legacyRow struct {
	shopID        int64
	categoryID    int64
	subcategoryID int64
	title         string
	sku           string
	price         decimal.Decimal
}

func (r legacyRow) key() string {
	return strconv.FormatInt(r.shopID, 10) + "|" + r.sku
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing products-*.csv.gz dump files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "products-*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "glob dump files")
	}
	if len(files) == 0 {
		return errors.Errorf("no products-*.csv.gz files in %s", dataDir)
	}

	slog.Info("found dump files", slog.Int("count", len(files)))

	// Pass 1: build one bloom filter of shop/SKU keys per file, concurrently.
	slog.Info("pass 1: building bloom filters")

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Pass 2: stream files in order, resolving bloom-flagged duplicates
	// exactly before inserting.
	slog.Info("pass 2: inserting products")

	return insertProducts(ctx, pool, files, filters)
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamDumpFile(ctx, path, func(row legacyRow) error {
			filter.AddString(row.key())
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("file", idx+1),
					slog.Uint64("rows", count),
				)
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_rows", count),
		)

		filters[idx] = filter
		return nil
	}
}

// insertProducts streams the dump files in order and inserts their rows in
// batches. Rows whose shop/SKU key may exist in an earlier file (per that
// file's bloom filter) are tracked in an exact seen-set; the database partial
// unique index catches anything the filters let through.
func insertProducts(ctx context.Context, pool *pgxpool.Pool, files []string, filters []*bloom.BloomFilter) error {
	seen := make(map[string]struct{})

	var inserted, skipped uint64
	batch := make([]legacyRow, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := insertBatch(ctx, pool, batch)
		if err != nil {
			return err
		}
		inserted += n
		skipped += uint64(len(batch)) - n
		batch = batch[:0]
		return nil
	}

	for idx, path := range files {
		var count uint64

		err := streamDumpFile(ctx, path, func(row legacyRow) error {
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("rows", count),
					slog.Uint64("inserted", inserted),
				)
			}

			key := row.key()
			if mayDuplicate(key, idx, filters) {
				if _, dup := seen[key]; dup {
					skipped++
					return nil
				}
				seen[key] = struct{}{}
			}

			batch = append(batch, row)
			if len(batch) == batchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "ingest file %s", path)
		}

		if err := flush(); err != nil {
			return errors.Wrapf(err, "flush file %s", path)
		}

		slog.Info("pass 2 file complete",
			slog.Int("file", idx+1),
			slog.Uint64("rows", count),
		)
	}

	slog.Info("insert pass complete",
		slog.Uint64("inserted", inserted),
		slog.Uint64("skipped", skipped),
	)

	return nil
}

// mayDuplicate reports whether key might also appear in a file other than
// files[idx], i.e. whether exact tracking is needed for it.
func mayDuplicate(key string, idx int, filters []*bloom.BloomFilter) bool {
	for j, f := range filters {
		if j == idx {
			continue
		}
		if f.TestString(key) {
			return true
		}
	}
	return false
}

// insertBatch writes rows in one pipelined batch. Conflicts on the shop/SKU
// unique index are dropped silently; the returned count is rows inserted.
func insertBatch(ctx context.Context, pool *pgxpool.Pool, rows []legacyRow) (uint64, error) {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO products (shop_id, category_id, subcategory_id, title, sku, price)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (shop_id, sku) WHERE NOT deleted DO NOTHING
		`, r.shopID, r.categoryID, r.subcategoryID, r.title, r.sku, r.price)
	}

	results := pool.SendBatch(ctx, b)
	defer func() { _ = results.Close() }()

	var inserted uint64
	for range rows {
		tag, err := results.Exec()
		if err != nil {
			return inserted, errors.Wrap(err, "batch insert")
		}
		inserted += uint64(tag.RowsAffected())
	}

	return inserted, nil
}

// streamDumpFile opens a gzip-compressed CSV dump and calls fn for each
// parsed row. Malformed rows abort the ingest rather than being skipped.
func streamDumpFile(ctx context.Context, path string, fn func(row legacyRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(bufio.NewReader(gz))
	r.FieldsPerRecord = 6
	r.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}

		row, err := parseRow(record)
		if err != nil {
			return errors.Wrapf(err, "%s line %d", path, line)
		}

		if err := fn(row); err != nil {
			return err
		}
	}
}

func parseRow(record []string) (legacyRow, error) {
	var row legacyRow
	var err error

	if row.shopID, err = strconv.ParseInt(record[0], 10, 64); err != nil {
		return row, fmt.Errorf("shop_id %q: %w", record[0], err)
	}
	if row.categoryID, err = strconv.ParseInt(record[1], 10, 64); err != nil {
		return row, fmt.Errorf("category_id %q: %w", record[1], err)
	}
	if row.subcategoryID, err = strconv.ParseInt(record[2], 10, 64); err != nil {
		return row, fmt.Errorf("subcategory_id %q: %w", record[2], err)
	}
	row.title = record[3]
	row.sku = record[4]
	if row.price, err = decimal.NewFromString(record[5]); err != nil {
		return row, fmt.Errorf("price %q: %w", record[5], err)
	}
	if row.price.IsNegative() {
		return row, fmt.Errorf("price %q: negative", record[5])
	}

	return row, nil
}
