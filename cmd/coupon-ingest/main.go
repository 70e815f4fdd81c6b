// Command coupon-ingest bulk-creates coupons from gzip files holding one code
// per line. Every coupon gets the same terms, taken from flags. A code listed
// in more than one file is imported once.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	batchSize     = 5_000
	progressEvery = 1_000_000
)

type options struct {
	dataDir     string
	databaseURL string
	capacity    uint
	dryRun      bool
	template    coupon.Input
	validDays   int
}

func main() {
	var (
		opts                         options
		typ                          string
		value, minOrder, maxDiscount string
	)

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing *.gz code files")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.capacity, "expected-codes", 10_000_000, "expected codes per file, sizes the bloom filters")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "count codes without writing to the database")
	flag.StringVar(&typ, "type", string(coupon.TypePercentage), "discount type: percentage or flat")
	flag.StringVar(&value, "value", "10", "percentage or flat amount")
	flag.StringVar(&minOrder, "min-order", "0", "minimum order amount")
	flag.StringVar(&maxDiscount, "max-discount", "0", "cap of percentage discounts, 0 for none")
	flag.IntVar(&opts.template.MaxUsage, "max-usage", 1, "redemptions per code, -1 for unlimited")
	flag.IntVar(&opts.template.MaxUsagePerUser, "max-usage-per-user", 1, "redemptions per user")
	flag.IntVar(&opts.validDays, "valid-days", 30, "days the coupons stay valid")
	flag.StringVar(&opts.template.Description, "description", "", "coupon description")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" && !opts.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	var err error
	opts.template.Type = coupon.Type(typ)
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"value", value, &opts.template.Value},
		{"min-order", minOrder, &opts.template.MinOrderAmount},
		{"max-discount", maxDiscount, &opts.template.MaxDiscount},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			slog.Error("invalid amount", slog.String("flag", f.name), slog.String("value", f.raw))
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	if len(files) == 0 {
		return errors.Errorf("no .gz files in %s", opts.dataDir)
	}
	slices.Sort(files)

	now := time.Now()
	opts.template.Code = "TEMPLATE"
	opts.template.StartDate = now
	opts.template.EndDate = now.AddDate(0, 0, opts.validDays)
	if err := opts.template.Validate(); err != nil {
		return errors.Wrap(err, "coupon terms")
	}

	// Pass 1: one bloom filter per file, built concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, opts.capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: codes that may also appear in an earlier file are set aside;
	// the rest are new for sure.
	slog.Info("pass 2: splitting new codes from possible repeats")

	var (
		write  = func([]string) error { return nil }
		stored int64
	)
	if !opts.dryRun {
		pool, err := postgres.NewPool(ctx, opts.databaseURL, 0)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()
		repo := postgres.NewCouponRepository(pool)

		write = func(codes []string) error {
			n, err := repo.BulkCreate(ctx, buildCoupons(opts.template, codes, now))
			stored += n
			return err
		}
	}

	sink := newBatcher(batchSize, write)
	candidates, err := splitCodes(ctx, files, filters, sink)
	if err != nil {
		return errors.Wrap(err, "split codes")
	}

	// Pass 3: settle the possible repeats against the earlier files.
	slog.Info("pass 3: checking possible repeats", slog.Int("candidates", countCandidates(candidates)))

	repeats, err := resolveCandidates(ctx, files, candidates, sink)
	if err != nil {
		return errors.Wrap(err, "resolve candidates")
	}
	if err := sink.flush(); err != nil {
		return errors.Wrap(err, "write coupons")
	}

	slog.Info("ingest summary",
		slog.Int("codes_sent", sink.total),
		slog.Int("repeated_codes", repeats),
		slog.Int64("inserted", stored),
		slog.Bool("dry_run", opts.dryRun),
	)
	return nil
}

func buildCoupons(template coupon.Input, codes []string, now time.Time) []coupon.Coupon {
	out := make([]coupon.Coupon, len(codes))
	for i, code := range codes {
		in := template
		in.Code = code
		out[i] = in.Build(now)
	}
	return out
}

// batcher groups codes into fixed-size writes. It is used from one goroutine
// at a time.
type batcher struct {
	size  int
	buf   []string
	total int
	write func([]string) error
}

func newBatcher(size int, write func([]string) error) *batcher {
	return &batcher{size: size, buf: make([]string, 0, size), write: write}
}

func (b *batcher) add(code string) error {
	b.buf = append(b.buf, code)
	b.total++
	if len(b.buf) < b.size {
		return nil
	}
	return b.flush()
}

func (b *batcher) flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	err := b.write(b.buf)
	b.buf = b.buf[:0]
	return err
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64

			if err := streamCodes(ctx, f, func(code string) error {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", f), slog.Uint64("codes", count))
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.String("file", f), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// splitCodes streams the files in order. A code that no earlier file's filter
// contains is first seen in its file and goes to sink; the others are
// returned per file for an exact check. Repeats within a file are left to the
// database's unique code constraint.
func splitCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter, sink *batcher) ([]map[string]struct{}, error) {
	candidates := make([]map[string]struct{}, len(files))
	for i, f := range files {
		candidates[i] = map[string]struct{}{}
		err := streamCodes(ctx, f, func(code string) error {
			for _, earlier := range filters[:i] {
				if earlier.TestString(code) {
					candidates[i][code] = struct{}{}
					return nil
				}
			}
			return sink.add(code)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", f)
		}
		slog.Info("pass 2 complete", slog.String("file", f), slog.Int("candidates", len(candidates[i])))
	}
	return candidates, nil
}

// resolveCandidates re-reads the files that may hold a candidate and sends
// the false positives to sink. It returns how many candidates are real
// repeats.
func resolveCandidates(ctx context.Context, files []string, candidates []map[string]struct{}, sink *batcher) (int, error) {
	pending := map[string]int{} // code -> file it was set aside in
	for i, set := range candidates {
		for code := range set {
			if _, seen := pending[code]; !seen {
				pending[code] = i
			}
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	found := map[string]bool{}
	for j, f := range files[:len(files)-1] {
		err := streamCodes(ctx, f, func(code string) error {
			if owner, ok := pending[code]; ok && j < owner {
				found[code] = true
			}
			return nil
		})
		if err != nil {
			return 0, errors.Wrapf(err, "rescan %s", f)
		}
	}

	for code := range pending {
		if found[code] {
			continue
		}
		if err := sink.add(code); err != nil {
			return 0, err
		}
	}
	return len(found), nil
}

func countCandidates(c []map[string]struct{}) int {
	n := 0
	for _, set := range c {
		n += len(set)
	}
	return n
}

// streamCodes opens a gzip-compressed file and calls fn for each valid code.
// Codes are normalized; blank and malformed lines are skipped.
func streamCodes(ctx context.Context, path string, fn func(code string) error) error {
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
		code := coupon.NormalizeCode(scanner.Text())
		if !coupon.ValidCode(code) {
			continue
		}
		if err := fn(code); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
