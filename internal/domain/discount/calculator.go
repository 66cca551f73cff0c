package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// NoopTotalPolicy selects the final total reported when a stackable code adds
// nothing on top of the codes already stacked.
type NoopTotalPolicy int

const (
	// NoopKeepsCartTotal reports the full, unreduced cart total.
	NoopKeepsCartTotal NoopTotalPolicy = iota
	// NoopNetOfStacked reports the cart total minus the already stacked
	// discount.
	NoopNetOfStacked
)

func (p NoopTotalPolicy) String() string {
	switch p {
	case NoopKeepsCartTotal:
		return "cart-total"
	case NoopNetOfStacked:
		return "net-of-stacked"
	default:
		return "unknown"
	}
}

// ParseNoopTotalPolicy parses the String form of a policy.
func ParseNoopTotalPolicy(s string) (NoopTotalPolicy, error) {
	switch s {
	case "cart-total", "":
		return NoopKeepsCartTotal, nil
	case "net-of-stacked":
		return NoopNetOfStacked, nil
	default:
		return 0, errors.Errorf("unknown no-op total policy %q", s)
	}
}

// calculate dispatches on the rule mode once eligibility has passed.
func calculate(catalog *Catalog, items []Item, code string, user User, el eligibility, noop NoopTotalPolicy) Decision {
	if el.rule.Exclusive {
		return calculateExclusive(el)
	}
	return calculateStacked(catalog, items, code, user, el, noop)
}

func calculateExclusive(el eligibility) Decision {
	amount := decimal.Min(el.applicable.Mul(el.rule.Rate), el.rule.MaxAmount)
	return accepted(OutcomeApplied, amount, el.cartTotal.Sub(amount))
}

func calculateStacked(catalog *Catalog, items []Item, code string, user User, el eligibility, noop NoopTotalPolicy) Decision {
	stacked := stackedDiscount(catalog, items, code, user.History)

	newDiscount := floorAtZero(el.applicable.Sub(stacked)).Mul(el.rule.Rate)
	remainingCap := floorAtZero(el.rule.MaxAmount.Sub(stacked))
	amount := decimal.Min(newDiscount, remainingCap)

	if !amount.IsPositive() {
		d := rejected(OutcomeNoAdditionalDiscount, el.cartTotal)
		if noop == NoopNetOfStacked {
			d.FinalTotal = el.cartTotal.Sub(stacked)
		}
		return d
	}

	return accepted(OutcomeStackedApplied, amount, el.cartTotal.Sub(stacked).Sub(amount))
}

// stackedDiscount sums the contribution of every known stackable history
// entry other than code, recomputed against the current cart. Duplicate
// entries contribute once each.
func stackedDiscount(catalog *Catalog, items []Item, code string, history []string) decimal.Decimal {
	sum := decimal.Zero
	for _, prior := range history {
		if prior == code {
			continue
		}
		r, ok := catalog.rule(prior)
		if !ok || !r.Stackable {
			continue
		}
		sum = sum.Add(ApplicableTotal(items, r).Mul(r.Rate))
	}
	return sum
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
