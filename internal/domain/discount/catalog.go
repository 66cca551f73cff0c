package discount

import (
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Catalog is an immutable code → rule table. It is safe for concurrent use.
type Catalog struct {
	rules map[string]Rule
}

// NewCatalog validates the rules and builds a catalog. Codes are matched
// case-sensitively.
func NewCatalog(rules ...Rule) (*Catalog, error) {
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, ok := m[r.Code]; ok {
			return nil, errors.Wrapf(ErrDuplicateCode, "code %q", r.Code)
		}
		m[r.Code] = r.clone()
	}
	return &Catalog{rules: m}, nil
}

// MustCatalog is like NewCatalog but panics on invalid rules.
func MustCatalog(rules ...Rule) *Catalog {
	c, err := NewCatalog(rules...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the rule for code.
func (c *Catalog) Lookup(code string) (Rule, bool) {
	r, ok := c.rules[code]
	if !ok {
		return Rule{}, false
	}
	return r.clone(), true
}

// Rules returns a copy of all rules sorted by code.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.clone())
	}
	slices.SortFunc(out, func(a, b Rule) int {
		return strings.Compare(a.Code, b.Code)
	})
	return out
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// rule returns the stored rule without copying. Internal read-only use.
func (c *Catalog) rule(code string) (Rule, bool) {
	r, ok := c.rules[code]
	return r, ok
}

// DefaultRules returns the built-in promotional rules.
func DefaultRules() []Rule {
	unbounded := decimal.NewFromInt(999999)
	return []Rule{
		{
			Code:        "SAVE10",
			Rate:        decimal.RequireFromString("0.1"),
			MinAmount:   decimal.NewFromInt(50),
			MaxAmount:   unbounded,
			Stackable:   true,
			Description: "10% off, stacks with other promotions",
		},
		{
			Code:          "SAVE20",
			Rate:          decimal.RequireFromString("0.2"),
			MinAmount:     decimal.NewFromInt(100),
			MaxAmount:     decimal.NewFromInt(500),
			Categories:    []string{"A"},
			Exclusive:     true,
			RequiredLevel: 1,
			Description:   "20% off category A, once per customer",
		},
		{
			Code:        "WELCOME",
			Rate:        decimal.RequireFromString("0.15"),
			MinAmount:   decimal.Zero,
			MaxAmount:   decimal.NewFromInt(250),
			Stackable:   true,
			Description: "Welcome: 15% off",
		},
		{
			Code:          "VIP50",
			Rate:          decimal.RequireFromString("0.5"),
			MinAmount:     decimal.NewFromInt(200),
			MaxAmount:     unbounded,
			Exclusive:     true,
			RequiredLevel: 3,
			Description:   "VIP: 50% off, once per customer",
		},
	}
}
