package discount

import "github.com/shopspring/decimal"

// Outcome enumerates every result the engine can produce.
type Outcome int

const (
	// OutcomeInvalidCode means the code is not in the catalog.
	OutcomeInvalidCode Outcome = iota + 1
	// OutcomeInsufficientLevel means the user level is below the rule's floor.
	OutcomeInsufficientLevel
	// OutcomeAlreadyUsed means an exclusive code is already in the history.
	OutcomeAlreadyUsed
	// OutcomeMinimumNotMet means the applicable amount is below the minimum.
	OutcomeMinimumNotMet
	// OutcomeMaximumExceeded means the applicable amount is above the maximum.
	OutcomeMaximumExceeded
	// OutcomeNoAdditionalDiscount means prior stacked codes leave nothing to add.
	OutcomeNoAdditionalDiscount
	// OutcomeApplied is a successful exclusive discount.
	OutcomeApplied
	// OutcomeStackedApplied is a successful stackable discount.
	OutcomeStackedApplied
)

var outcomeInfo = map[Outcome]struct {
	id      string
	message string
}{
	OutcomeInvalidCode:          {"invalid_code", "Invalid code"},
	OutcomeInsufficientLevel:    {"insufficient_level", "Insufficient level"},
	OutcomeAlreadyUsed:          {"already_used", "Already used"},
	OutcomeMinimumNotMet:        {"minimum_not_met", "Minimum not met"},
	OutcomeMaximumExceeded:      {"maximum_exceeded", "Maximum exceeded"},
	OutcomeNoAdditionalDiscount: {"no_additional_discount", "No additional discount"},
	OutcomeApplied:              {"applied", "Applied"},
	OutcomeStackedApplied:       {"stacked_applied", "Stacked applied"},
}

// Outcomes returns all outcomes in declaration order.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeInvalidCode,
		OutcomeInsufficientLevel,
		OutcomeAlreadyUsed,
		OutcomeMinimumNotMet,
		OutcomeMaximumExceeded,
		OutcomeNoAdditionalDiscount,
		OutcomeApplied,
		OutcomeStackedApplied,
	}
}

// Success reports whether the outcome applied a discount.
func (o Outcome) Success() bool {
	return o == OutcomeApplied || o == OutcomeStackedApplied
}

// Message returns the stable human-readable reason.
func (o Outcome) Message() string {
	if info, ok := outcomeInfo[o]; ok {
		return info.message
	}
	return "Unknown"
}

// String returns the snake_case identifier used on the wire and in metrics.
func (o Outcome) String() string {
	if info, ok := outcomeInfo[o]; ok {
		return info.id
	}
	return "unknown"
}

// Decision is the result of a single evaluation.
type Decision struct {
	Success    bool
	Outcome    Outcome
	Message    string
	Amount     decimal.Decimal
	FinalTotal decimal.Decimal
}

func rejected(o Outcome, cartTotal decimal.Decimal) Decision {
	return Decision{
		Outcome:    o,
		Message:    o.Message(),
		Amount:     decimal.Zero,
		FinalTotal: cartTotal,
	}
}

func accepted(o Outcome, amount, finalTotal decimal.Decimal) Decision {
	return Decision{
		Success:    true,
		Outcome:    o,
		Message:    o.Message(),
		Amount:     amount,
		FinalTotal: finalTotal,
	}
}
