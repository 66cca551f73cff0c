// Package catalog loads discount rules from YAML files. Files ending in .gz
// are decompressed on the fly.
package catalog

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/xenking/promo-engine/internal/domain/discount"
)

// ErrNoRules is returned when the configured files contain no rules.
var ErrNoRules = errors.New("catalog has no rules")

// File is the on-disk layout of a catalog file.
//
//	rules:
//	  - code: SAVE10
//	    rate: 0.1
//	    min_amount: 50
//	    max_amount: 999999
//	    stackable: true
type File struct {
	Rules []RuleEntry `yaml:"rules"`
}

// RuleEntry is a single rule as written in a catalog file.
type RuleEntry struct {
	Code          string   `yaml:"code"`
	Rate          Amount   `yaml:"rate"`
	MinAmount     Amount   `yaml:"min_amount"`
	MaxAmount     Amount   `yaml:"max_amount"`
	Categories    []string `yaml:"categories"`
	Exclusive     bool     `yaml:"exclusive"`
	Stackable     bool     `yaml:"stackable"`
	RequiredLevel int      `yaml:"required_level"`
	Description   string   `yaml:"description"`
}

// Rule converts the entry into a domain rule.
func (s RuleEntry) Rule() discount.Rule {
	return discount.Rule{
		Code:          s.Code,
		Rate:          s.Rate.Decimal,
		MinAmount:     s.MinAmount.Decimal,
		MaxAmount:     s.MaxAmount.Decimal,
		Categories:    s.Categories,
		Exclusive:     s.Exclusive,
		Stackable:     s.Stackable,
		RequiredLevel: s.RequiredLevel,
		Description:   s.Description,
	}
}

// Amount decodes a YAML scalar into an exact decimal.
type Amount struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected a number", value.Line)
	}
	v, err := decimal.NewFromString(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d: parse %q", value.Line, value.Value)
	}
	a.Decimal = v
	return nil
}

// Decode reads a single catalog document.
func Decode(r io.Reader) ([]discount.Rule, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "decode yaml")
	}

	rules := make([]discount.Rule, len(f.Rules))
	for i, s := range f.Rules {
		rules[i] = s.Rule()
	}
	return rules, nil
}

// LoadFile reads rules from a single file.
func LoadFile(ctx context.Context, path string) ([]discount.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	rules, err := Decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return rules, nil
}

// LoadFiles reads all files concurrently and returns their rules in file
// order.
func LoadFiles(ctx context.Context, paths []string) ([]discount.Rule, error) {
	results := make([][]discount.Rule, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			rules, err := LoadFile(ctx, p)
			if err != nil {
				return err
			}
			results[i] = rules
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []discount.Rule
	for _, r := range results {
		all = append(all, r...)
	}
	if len(all) == 0 {
		return nil, ErrNoRules
	}
	return all, nil
}

// Load reads all files and builds a validated catalog. Duplicate codes
// across files are rejected.
func Load(ctx context.Context, paths []string) (*discount.Catalog, error) {
	rules, err := LoadFiles(ctx, paths)
	if err != nil {
		return nil, err
	}
	c, err := discount.NewCatalog(rules...)
	if err != nil {
		return nil, errors.Wrap(err, "build catalog")
	}
	return c, nil
}
