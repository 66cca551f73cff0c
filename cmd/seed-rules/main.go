// Command seed-rules loads catalog files into PostgreSQL.
//
//	seed-rules --database-url=postgres://... rules.yaml seasonal.yaml.gz
//	seed-rules --database-url=postgres://... --deactivate=SAVE20,VIP50
//
// Without file arguments the built-in rules are seeded. With --deactivate the
// listed codes are hidden from catalog loads and nothing is seeded.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/promo-engine/internal/catalog"
	"github.com/xenking/promo-engine/internal/domain/discount"
	"github.com/xenking/promo-engine/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		opts        options
		deactivate  string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&opts.Upsert, "upsert", false, "replace rules whose code already exists instead of skipping them")
	flag.StringVar(&deactivate, "deactivate", "", "comma-separated codes to deactivate instead of seeding")
	flag.Parse()
	opts.Files = flag.Args()
	opts.Deactivate = splitCodes(deactivate)

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
}

type options struct {
	Files      []string
	Upsert     bool
	Deactivate []string
}

func splitCodes(s string) []string {
	var codes []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, opts options) error {
	var rules []discount.Rule
	if len(opts.Deactivate) == 0 {
		var src catalog.Source = catalog.Static(discount.DefaultRules())
		if len(opts.Files) > 0 {
			src = catalog.Files(opts.Files)
		}
		var err error
		if rules, err = src.ListRules(ctx); err != nil {
			return errors.Wrap(err, "read rules")
		}
		// Reject duplicates and invalid rules before touching the database.
		if _, err := discount.NewCatalog(rules...); err != nil {
			return errors.Wrap(err, "validate rules")
		}
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewRuleRepository(pool)
	if len(opts.Deactivate) > 0 {
		res, err := deactivate(ctx, lg, repo, opts.Deactivate)
		if err != nil {
			return err
		}
		lg.Info("Deactivation completed",
			zap.Int("deactivated", res.Deactivated),
			zap.Int("missing", res.Missing),
		)
		return nil
	}

	res, err := seed(ctx, lg, repo, rules, opts.Upsert)
	if err != nil {
		return err
	}
	lg.Info("Seed completed",
		zap.Int("written", res.Written),
		zap.Int("skipped", res.Skipped),
		zap.Int("drifted", res.Drifted),
	)
	return nil
}

type ruleStore interface {
	Insert(ctx context.Context, rule discount.Rule) error
	Upsert(ctx context.Context, rule discount.Rule) error
	FindByCode(ctx context.Context, code string) (*discount.Rule, error)
	Deactivate(ctx context.Context, code string) error
}

type seedResult struct {
	Written int
	Skipped int
	// Drifted counts skipped rules whose stored definition differs from the
	// seeded one.
	Drifted int
}

func seed(ctx context.Context, lg *zap.Logger, store ruleStore, rules []discount.Rule, upsert bool) (seedResult, error) {
	var res seedResult
	for _, r := range rules {
		if upsert {
			if err := store.Upsert(ctx, r); err != nil {
				return res, errors.Wrapf(err, "upsert %s", r.Code)
			}
			res.Written++
			continue
		}

		err := store.Insert(ctx, r)
		switch {
		case errors.Is(err, postgres.ErrRuleExists):
			res.Skipped++
			drifted, err := differs(ctx, store, r)
			if err != nil {
				return res, err
			}
			if drifted {
				res.Drifted++
				lg.Warn("Stored rule differs, rerun with --upsert to replace", zap.String("code", r.Code))
				continue
			}
			lg.Info("Rule exists, skipping", zap.String("code", r.Code))
		case err != nil:
			return res, errors.Wrapf(err, "insert %s", r.Code)
		default:
			res.Written++
		}
	}
	return res, nil
}

// differs reports whether the stored active rule with r's code has a
// different definition. An inactive rule counts as different.
func differs(ctx context.Context, store ruleStore, r discount.Rule) (bool, error) {
	stored, err := store.FindByCode(ctx, r.Code)
	switch {
	case errors.Is(err, postgres.ErrRuleNotFound):
		return true, nil
	case err != nil:
		return false, errors.Wrapf(err, "find %s", r.Code)
	}
	return !stored.Equal(r), nil
}

type deactivateResult struct {
	Deactivated int
	Missing     int
}

func deactivate(ctx context.Context, lg *zap.Logger, store ruleStore, codes []string) (deactivateResult, error) {
	var res deactivateResult
	for _, code := range codes {
		err := store.Deactivate(ctx, code)
		switch {
		case errors.Is(err, postgres.ErrRuleNotFound):
			lg.Warn("No active rule, skipping", zap.String("code", code))
			res.Missing++
		case err != nil:
			return res, errors.Wrapf(err, "deactivate %s", code)
		default:
			lg.Info("Rule deactivated", zap.String("code", code))
			res.Deactivated++
		}
	}
	return res, nil
}
