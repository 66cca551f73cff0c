package discount

import "github.com/shopspring/decimal"

// eligibility is what the validator hands to the calculator so totals are
// computed once.
type eligibility struct {
	rule       Rule
	applicable decimal.Decimal
	cartTotal  decimal.Decimal
}

// validate runs the eligibility checks in order. The first failing check
// produces the returned Decision and ok=false.
func validate(catalog *Catalog, items []Item, code string, user User) (eligibility, Decision, bool) {
	cartTotal := CartTotal(items)

	rule, found := catalog.rule(code)
	if !found {
		return eligibility{}, rejected(OutcomeInvalidCode, cartTotal), false
	}

	if user.Level < rule.RequiredLevel {
		return eligibility{}, rejected(OutcomeInsufficientLevel, cartTotal), false
	}

	// Stackable codes may repeat; the stacking computation neutralises them.
	if !rule.Stackable && user.used(code) {
		return eligibility{}, rejected(OutcomeAlreadyUsed, cartTotal), false
	}

	applicable := ApplicableTotal(items, rule)
	if applicable.LessThan(rule.MinAmount) {
		return eligibility{}, rejected(OutcomeMinimumNotMet, cartTotal), false
	}
	if applicable.GreaterThan(rule.MaxAmount) {
		return eligibility{}, rejected(OutcomeMaximumExceeded, cartTotal), false
	}

	return eligibility{
		rule:       rule,
		applicable: applicable,
		cartTotal:  cartTotal,
	}, Decision{}, true
}
