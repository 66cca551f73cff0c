package catalog

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-engine/internal/domain/discount"
)

// Source provides the rules a catalog is built from.
type Source interface {
	ListRules(ctx context.Context) ([]discount.Rule, error)
}

// Files is a Source reading YAML catalog files.
type Files []string

// ListRules implements Source.
func (f Files) ListRules(ctx context.Context) ([]discount.Rule, error) {
	return LoadFiles(ctx, f)
}

// Static is a Source over a fixed rule list.
type Static []discount.Rule

// ListRules implements Source.
func (s Static) ListRules(context.Context) ([]discount.Rule, error) {
	if len(s) == 0 {
		return nil, ErrNoRules
	}
	return append([]discount.Rule(nil), s...), nil
}

// Build loads rules from src and constructs an immutable catalog.
func Build(ctx context.Context, src Source) (*discount.Catalog, error) {
	rules, err := src.ListRules(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list rules")
	}
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	c, err := discount.NewCatalog(rules...)
	if err != nil {
		return nil, errors.Wrap(err, "build catalog")
	}
	return c, nil
}
