package discount

import "github.com/shopspring/decimal"

// LineAmount returns price * quantity.
func LineAmount(it Item) decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// CartTotal returns the sum of line amounts. An empty cart totals zero.
func CartTotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(LineAmount(it))
	}
	return sum
}

// ApplicableItems returns the items matched by the rule's category filter.
func ApplicableItems(items []Item, rule Rule) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if rule.AppliesTo(it.Category) {
			out = append(out, it)
		}
	}
	return out
}

// ApplicableTotal returns the total of the items the rule applies to.
func ApplicableTotal(items []Item, rule Rule) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if rule.AppliesTo(it.Category) {
			sum = sum.Add(LineAmount(it))
		}
	}
	return sum
}
