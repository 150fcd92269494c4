// Command stock-import ingests gzipped supplier stock feeds and updates
// catalog stock levels. Feeds are CSV lines of "sku,quantity"; SKUs not
// in the catalog are skipped via a bloom prefilter so unknown rows never
// reach the database.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/pawmart/cart-engine/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	feeds := flag.Args()
	if len(feeds) == 0 {
		slog.Error("at least one feed file is required: stock-import [flags] feed1.gz [feed2.gz ...]")
		os.Exit(1)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, feeds); err != nil {
		slog.Error("stock import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock import completed successfully")
}

func run(ctx context.Context, databaseURL string, feeds []string) error {
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	// Build the catalog prefilter: a bloom filter over known product
	// IDs. False positives only cost one no-op UPDATE.
	slog.Info("loading catalog prefilter")

	filter, catalogSize, err := buildCatalogFilter(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "build catalog filter")
	}

	slog.Info("catalog loaded", slog.Int("products", catalogSize))

	// Scan all feeds concurrently; last value per SKU wins across a
	// single feed, later feeds override earlier ones in argument order.
	levels := make([]map[string]int, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range feeds {
		g.Go(func() error {
			found, err := scanFeed(gctx, i, feed, filter)
			if err != nil {
				return errors.Wrapf(err, "scan feed %s", feed)
			}
			levels[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	merged := make(map[string]int)
	for _, m := range levels {
		for sku, qty := range m {
			merged[sku] = qty
		}
	}

	slog.Info("applying stock levels", slog.Int("skus", len(merged)))

	updated := 0
	for sku, qty := range merged {
		tag, err := pool.Exec(ctx,
			`UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, sku, qty)
		if err != nil {
			return errors.Wrapf(err, "update stock for %s", sku)
		}
		updated += int(tag.RowsAffected())
	}

	slog.Info("stock levels applied", slog.Int("updated", updated))
	return nil
}

// buildCatalogFilter loads all product IDs into a bloom filter sized
// for the current catalog.
func buildCatalogFilter(ctx context.Context, pool *pgxpool.Pool) (*bloom.BloomFilter, int, error) {
	var count int64
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&count); err != nil {
		return nil, 0, errors.Wrap(err, "count products")
	}
	if count == 0 {
		count = 1
	}

	filter := bloom.NewWithEstimates(uint(count), bloomFPR)

	rows, err := pool.Query(ctx, `SELECT id FROM products`)
	if err != nil {
		return nil, 0, errors.Wrap(err, "query product ids")
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, 0, errors.Wrap(err, "scan product id")
		}
		filter.AddString(id)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterate product ids")
	}

	return filter, loaded, nil
}

// scanFeed streams one gzipped feed and returns the stock level per
// known SKU.
func scanFeed(ctx context.Context, idx int, path string, filter *bloom.BloomFilter) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	found := make(map[string]int)
	var count uint64

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		count++
		if count%progressEvery == 0 {
			slog.Info("feed progress", slog.Int("feed", idx+1), slog.Uint64("rows", count))
		}

		sku, qty, ok := parseFeedLine(scanner.Text())
		if !ok {
			continue
		}
		if !filter.TestString(sku) {
			continue
		}
		found[sku] = qty
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("feed complete",
		slog.Int("feed", idx+1),
		slog.Uint64("rows", count),
		slog.Int("matched", len(found)),
	)
	return found, nil
}

// parseFeedLine parses a "sku,quantity" line. Malformed lines and
// negative quantities are skipped.
func parseFeedLine(line string) (sku string, qty int, ok bool) {
	sku, qtyStr, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return "", 0, false
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return "", 0, false
	}
	qty, err := strconv.Atoi(strings.TrimSpace(qtyStr))
	if err != nil || qty < 0 {
		return "", 0, false
	}
	return sku, qty, true
}
