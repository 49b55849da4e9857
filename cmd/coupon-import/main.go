// Command coupon-import bulk-loads promo codes from gzipped marketing
// exports, one code per line. Files are scanned concurrently; a bloom filter
// dedupes codes across files before they hit the database. Dedupe is
// probabilistic: a false positive drops a code instead of double-inserting,
// which is the right trade for promo imports.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/shukshop/storefront/internal/domain/coupon"
	"github.com/shukshop/storefront/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 24
)

func main() {
	var (
		databaseURL   string
		percentageOff int
		expiresIn     time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&percentageOff, "percentage-off", 10, "discount applied to every imported code")
	flag.DurationVar(&expiresIn, "expires-in", 30*24*time.Hour, "validity window for imported codes")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one .gz export file is required")
		os.Exit(1)
	}
	if percentageOff < 1 || percentageOff > 100 {
		slog.Error("percentage-off must be between 1 and 100")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, percentageOff, expiresIn); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, percentageOff int, expiresIn time.Duration) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	coupons := repository.NewCouponRepository(pool)
	expiresAt := time.Now().Add(expiresIn).UTC()

	// Scanners feed codes into a single writer goroutine that owns the
	// bloom filter and the database connection. A writer failure cancels
	// the scanners so nobody blocks on a full channel.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	codes := make(chan string, 1024)

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(scanFile(ctx, i, f, codes))
	}

	done := make(chan error, 1)
	go func() {
		err := writeCoupons(ctx, coupons, codes, percentageOff, expiresAt)
		if err != nil {
			cancel()
		}
		done <- err
	}()

	scanErr := g.Wait()
	close(codes)
	writeErr := <-done

	if writeErr != nil {
		return errors.Wrap(writeErr, "write coupons")
	}
	if scanErr != nil {
		return errors.Wrap(scanErr, "scan exports")
	}
	return nil
}

// scanFile streams one gzipped export, passing well-formed codes downstream.
func scanFile(ctx context.Context, idx int, path string, codes chan<- string) func() error {
	return func() error {
		var count uint64

		err := streamGzFile(ctx, path, func(code string) error {
			if !validCode(code) {
				return nil
			}
			count++
			if count%progressEvery == 0 {
				slog.Info("scan progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
			}
			select {
			case codes <- code:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return errors.Wrapf(err, "scan file %d", idx+1)
		}

		slog.Info("scan complete", slog.Int("file", idx+1), slog.Uint64("total_codes", count))
		return nil
	}
}

// validCode accepts uppercase alphanumeric codes within the length bounds.
func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	return coupon.WellFormedCode(code)
}

// writeCoupons drains the codes channel, deduping through the bloom filter
// and inserting fresh codes. Codes already present in the database are
// skipped, so re-running an import is safe.
func writeCoupons(ctx context.Context, repo *repository.CouponRepository, codes <-chan string, percentageOff int, expiresAt time.Time) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var inserted, skipped uint64

	for code := range codes {
		if seen.TestAndAddString(code) {
			skipped++
			continue
		}

		err := repo.Create(ctx, &coupon.Coupon{
			Code:          code,
			PercentageOff: percentageOff,
			ExpiresAt:     expiresAt,
			IsActive:      true,
		})
		if err != nil {
			if errors.Is(err, coupon.ErrCodeExists) {
				skipped++
				continue
			}
			return errors.Wrapf(err, "insert coupon %s", code)
		}

		inserted++
		if inserted%10_000 == 0 {
			slog.Info("write progress", slog.Uint64("inserted", inserted), slog.Uint64("skipped", skipped))
		}
	}

	slog.Info("write complete", slog.Uint64("inserted", inserted), slog.Uint64("skipped", skipped))
	return nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string) error) error {
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

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
