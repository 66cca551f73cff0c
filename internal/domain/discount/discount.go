// Package discount implements the promotional code decision engine: rule
// lookup, eligibility validation, category-scoped amounts and stacking.
package discount

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRule is returned when a rule definition violates its
	// preconditions.
	ErrInvalidRule = errors.New("invalid discount rule")
	// ErrInvalidItem is returned when a cart item has a negative price or
	// quantity, or a price outside the amount range.
	ErrInvalidItem = errors.New("invalid cart item")
	// ErrDuplicateCode is returned when a catalog is built with two rules
	// sharing the same code.
	ErrDuplicateCode = errors.New("duplicate discount code")
)

// RuleError describes why a rule definition was rejected.
type RuleError struct {
	Code   string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.Code, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidRule).
func (e *RuleError) Unwrap() error { return ErrInvalidRule }

// ItemError describes why a cart item was rejected.
type ItemError struct {
	Index  int
	Reason string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidItem).
func (e *ItemError) Unwrap() error { return ErrInvalidItem }

// Rule defines a discount code's rate, bounds and eligibility constraints.
type Rule struct {
	Code string
	// Rate is a fraction in [0, 1] applied to the applicable amount.
	Rate      decimal.Decimal
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	// Categories restricts the rule to matching items. Empty means all.
	Categories    []string
	Exclusive     bool
	Stackable     bool
	RequiredLevel int
	Description   string
}

var one = decimal.NewFromInt(1)

const (
	// maxExponent bounds the decimal exponent of amounts in either direction.
	maxExponent = 18
	// maxDigits bounds the significant digits of amounts.
	maxDigits = 38
)

// magnitude reports why v is too large or too precise to be an amount, or ""
// when it is in range.
func magnitude(v decimal.Decimal) string {
	if exp := v.Exponent(); exp > maxExponent || exp < -maxExponent {
		return fmt.Sprintf("exponent %d outside [-%d, %d]", exp, maxExponent, maxExponent)
	}
	if n := v.NumDigits(); n > maxDigits {
		return fmt.Sprintf("%d digits exceed %d", n, maxDigits)
	}
	return ""
}

// Validate checks the rule's preconditions.
func (r Rule) Validate() error {
	reject := func(reason string) error {
		return &RuleError{Code: r.Code, Reason: reason}
	}

	for _, a := range []struct {
		name string
		v    decimal.Decimal
	}{{"rate", r.Rate}, {"min amount", r.MinAmount}, {"max amount", r.MaxAmount}} {
		if reason := magnitude(a.v); reason != "" {
			return reject(a.name + " " + reason)
		}
	}

	switch {
	case r.Code == "":
		return reject("code is empty")
	case r.Rate.IsNegative() || r.Rate.GreaterThan(one):
		return reject(fmt.Sprintf("rate %s outside [0, 1]", r.Rate))
	case r.MinAmount.IsNegative():
		return reject("min amount is negative")
	case r.MaxAmount.IsNegative():
		return reject("max amount is negative")
	case r.MaxAmount.LessThan(r.MinAmount):
		return reject(fmt.Sprintf("max amount %s below min amount %s", r.MaxAmount, r.MinAmount))
	case r.RequiredLevel < 0:
		return reject("required level is negative")
	case r.Exclusive == r.Stackable:
		return reject("rule must be either exclusive or stackable")
	}
	return nil
}

// AppliesTo reports whether the rule's category filter matches the category.
func (r Rule) AppliesTo(category string) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Equal reports whether both rules have the same definition. Amounts compare
// by value, so 0.1 equals 0.10. A nil category list equals an empty one.
func (r Rule) Equal(o Rule) bool {
	if r.Code != o.Code ||
		!r.Rate.Equal(o.Rate) ||
		!r.MinAmount.Equal(o.MinAmount) ||
		!r.MaxAmount.Equal(o.MaxAmount) ||
		r.Exclusive != o.Exclusive ||
		r.Stackable != o.Stackable ||
		r.RequiredLevel != o.RequiredLevel ||
		r.Description != o.Description ||
		len(r.Categories) != len(o.Categories) {
		return false
	}
	for i := range r.Categories {
		if r.Categories[i] != o.Categories[i] {
			return false
		}
	}
	return true
}

func (r Rule) clone() Rule {
	if r.Categories != nil {
		r.Categories = append([]string(nil), r.Categories...)
	}
	return r
}

// Item is a cart line as seen by the engine.
type Item struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
	Category string
}

// NewItem constructs a validated Item.
func NewItem(name string, price decimal.Decimal, quantity int, category string) (Item, error) {
	it := Item{Name: name, Price: price, Quantity: quantity, Category: category}
	if err := it.validate(0); err != nil {
		return Item{}, err
	}
	return it, nil
}

// Validate rejects negative prices and quantities and prices outside the
// representable amount range.
func (it Item) Validate() error {
	return it.validate(0)
}

func (it Item) validate(idx int) error {
	if reason := magnitude(it.Price); reason != "" {
		return &ItemError{Index: idx, Reason: "price " + reason}
	}
	if it.Price.IsNegative() {
		return &ItemError{Index: idx, Reason: fmt.Sprintf("price %s is negative", it.Price)}
	}
	if it.Quantity < 0 {
		return &ItemError{Index: idx, Reason: fmt.Sprintf("quantity %d is negative", it.Quantity)}
	}
	return nil
}

// ValidateItems checks every item and reports the first violation with its
// position in the cart.
func ValidateItems(items []Item) error {
	for i, it := range items {
		if err := it.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// User carries the eligibility context of the shopper.
type User struct {
	ID    string
	Level int
	// History lists previously applied codes in order. Unknown codes and
	// duplicates are allowed.
	History []string
}

func (u User) used(code string) bool {
	for _, h := range u.History {
		if h == code {
			return true
		}
	}
	return false
}
