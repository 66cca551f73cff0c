package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func item(price string, qty int, category string) Item {
	return Item{Price: d(price), Quantity: qty, Category: category}
}

// baseCart totals 250: 200 in category A, 50 in category B.
func baseCart() []Item {
	return []Item{
		item("100", 2, "A"),
		item("50", 1, "B"),
	}
}

func newDefaultEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	c, err := NewCatalog(DefaultRules()...)
	require.NoError(t, err)
	return New(c, opts...)
}

func TestEngine_Evaluate(t *testing.T) {
	tests := []struct {
		name        string
		items       []Item
		code        string
		user        User
		wantOutcome Outcome
		wantAmount  string
		wantFinal   string
	}{
		{
			name:        "unknown code",
			items:       baseCart(),
			code:        "INVALID_CODE",
			user:        User{Level: 2, History: []string{"WELCOME"}},
			wantOutcome: OutcomeInvalidCode,
			wantAmount:  "0",
			wantFinal:   "250",
		},
		{
			name:        "code match is case sensitive",
			items:       baseCart(),
			code:        "save20",
			user:        User{Level: 2},
			wantOutcome: OutcomeInvalidCode,
			wantAmount:  "0",
			wantFinal:   "250",
		},
		{
			name:        "insufficient level",
			items:       baseCart(),
			code:        "SAVE20",
			user:        User{Level: 0},
			wantOutcome: OutcomeInsufficientLevel,
			wantAmount:  "0",
			wantFinal:   "250",
		},
		{
			name:        "exclusive code already used",
			items:       baseCart(),
			code:        "SAVE20",
			user:        User{Level: 2, History: []string{"SAVE20"}},
			wantOutcome: OutcomeAlreadyUsed,
			wantAmount:  "0",
			wantFinal:   "250",
		},
		{
			name:        "already used short-circuits before minimum check",
			items:       []Item{item("60", 1, "A")},
			code:        "SAVE20",
			user:        User{Level: 2, History: []string{"SAVE20"}},
			wantOutcome: OutcomeAlreadyUsed,
			wantAmount:  "0",
			wantFinal:   "60",
		},
		{
			name:        "level check runs before already used",
			items:       baseCart(),
			code:        "VIP50",
			user:        User{Level: 1, History: []string{"VIP50"}},
			wantOutcome: OutcomeInsufficientLevel,
			wantAmount:  "0",
			wantFinal:   "250",
		},
		{
			name:        "minimum not met",
			items:       []Item{item("10", 1, "A")},
			code:        "SAVE20",
			user:        User{Level: 2, History: []string{"WELCOME"}},
			wantOutcome: OutcomeMinimumNotMet,
			wantAmount:  "0",
			wantFinal:   "10",
		},
		{
			name:        "no items in rule category",
			items:       []Item{item("150", 1, "B")},
			code:        "SAVE20",
			user:        User{Level: 2},
			wantOutcome: OutcomeMinimumNotMet,
			wantAmount:  "0",
			wantFinal:   "150",
		},
		{
			name:        "empty cart",
			items:       nil,
			code:        "SAVE10",
			user:        User{Level: 2, History: []string{"WELCOME"}},
			wantOutcome: OutcomeMinimumNotMet,
			wantAmount:  "0",
			wantFinal:   "0",
		},
		{
			name:        "maximum exceeded",
			items:       []Item{item("600", 1, "A")},
			code:        "SAVE20",
			user:        User{Level: 2},
			wantOutcome: OutcomeMaximumExceeded,
			wantAmount:  "0",
			wantFinal:   "600",
		},
		{
			name:        "failure total is whole cart not applicable subtotal",
			items:       []Item{item("600", 1, "A"), item("40", 1, "B")},
			code:        "SAVE20",
			user:        User{Level: 2},
			wantOutcome: OutcomeMaximumExceeded,
			wantAmount:  "0",
			wantFinal:   "640",
		},
		{
			name:        "exclusive SAVE20 on category A subtotal",
			items:       baseCart(),
			code:        "SAVE20",
			user:        User{Level: 2, History: []string{"WELCOME"}},
			wantOutcome: OutcomeApplied,
			wantAmount:  "40",
			wantFinal:   "210",
		},
		{
			name:        "exclusive VIP50 uncapped",
			items:       []Item{item("100", 3, "A"), item("50", 2, "B")},
			code:        "VIP50",
			user:        User{Level: 3},
			wantOutcome: OutcomeApplied,
			wantAmount:  "200",
			wantFinal:   "200",
		},
		{
			name:        "category only cart",
			items:       []Item{item("150", 1, "A")},
			code:        "SAVE20",
			user:        User{Level: 2},
			wantOutcome: OutcomeApplied,
			wantAmount:  "30",
			wantFinal:   "120",
		},
		{
			name:        "exact minimum",
			items:       []Item{item("100", 1, "A")},
			code:        "SAVE20",
			user:        User{Level: 2},
			wantOutcome: OutcomeApplied,
			wantAmount:  "20",
			wantFinal:   "80",
		},
		{
			name:        "exact maximum",
			items:       []Item{item("500", 1, "A")},
			code:        "SAVE20",
			user:        User{Level: 2},
			wantOutcome: OutcomeApplied,
			wantAmount:  "100",
			wantFinal:   "400",
		},
		{
			name:        "stackable SAVE10 without history",
			items:       baseCart(),
			code:        "SAVE10",
			user:        User{Level: 1},
			wantOutcome: OutcomeStackedApplied,
			wantAmount:  "25",
			wantFinal:   "225",
		},
		{
			name:        "stackable WELCOME without history",
			items:       baseCart(),
			code:        "WELCOME",
			user:        User{Level: 0},
			wantOutcome: OutcomeStackedApplied,
			wantAmount:  "37.5",
			wantFinal:   "212.5",
		},
		{
			name:        "SAVE10 on top of WELCOME",
			items:       baseCart(),
			code:        "SAVE10",
			user:        User{Level: 1, History: []string{"WELCOME"}},
			wantOutcome: OutcomeStackedApplied,
			wantAmount:  "21.25",
			wantFinal:   "191.25",
		},
		{
			name:        "duplicate history entries stack separately",
			items:       baseCart(),
			code:        "SAVE10",
			user:        User{Level: 1, History: []string{"WELCOME", "WELCOME"}},
			wantOutcome: OutcomeStackedApplied,
			wantAmount:  "17.5",
			wantFinal:   "157.5",
		},
		{
			name:        "repeat of the same stackable code is ignored",
			items:       baseCart(),
			code:        "SAVE10",
			user:        User{Level: 1, History: []string{"SAVE10", "SAVE10"}},
			wantOutcome: OutcomeStackedApplied,
			wantAmount:  "25",
			wantFinal:   "225",
		},
		{
			name:        "unknown and exclusive history entries do not stack",
			items:       baseCart(),
			code:        "SAVE10",
			user:        User{Level: 1, History: []string{"NOPE", "VIP50", "SAVE20"}},
			wantOutcome: OutcomeStackedApplied,
			wantAmount:  "25",
			wantFinal:   "225",
		},
	}

	e := newDefaultEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(tt.items, tt.code, tt.user)

			assert.Equal(t, tt.wantOutcome, got.Outcome)
			assert.Equal(t, tt.wantOutcome.Success(), got.Success)
			assert.Equal(t, tt.wantOutcome.Message(), got.Message)
			assert.True(t, d(tt.wantAmount).Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
			assert.True(t, d(tt.wantFinal).Equal(got.FinalTotal),
				"expected final %s, got %s", tt.wantFinal, got.FinalTotal)
		})
	}
}

func TestEngine_StackingNoop(t *testing.T) {
	// Ten prior SAVE10 entries consume the whole 100 applicable amount.
	history := make([]string, 10)
	for i := range history {
		history[i] = "SAVE10"
	}
	items := []Item{item("100", 1, "A")}
	user := User{Level: 0, History: history}

	t.Run("default keeps full cart total", func(t *testing.T) {
		got := newDefaultEngine(t).Evaluate(items, "WELCOME", user)

		assert.False(t, got.Success)
		assert.Equal(t, OutcomeNoAdditionalDiscount, got.Outcome)
		assert.Equal(t, "No additional discount", got.Message)
		assert.True(t, got.Amount.IsZero())
		assert.True(t, d("100").Equal(got.FinalTotal), "got %s", got.FinalTotal)
	})

	t.Run("net of stacked", func(t *testing.T) {
		got := newDefaultEngine(t, WithNoopTotalPolicy(NoopNetOfStacked)).Evaluate(items, "WELCOME", user)

		assert.False(t, got.Success)
		assert.Equal(t, OutcomeNoAdditionalDiscount, got.Outcome)
		assert.True(t, got.Amount.IsZero())
		assert.True(t, d("0").Equal(got.FinalTotal), "got %s", got.FinalTotal)
	})
}

func TestEngine_StackingRemainingCap(t *testing.T) {
	c := MustCatalog(
		Rule{Code: "PRIOR", Rate: d("0.2"), MaxAmount: d("1000"), Stackable: true},
		Rule{Code: "HALF", Rate: d("0.5"), MaxAmount: d("100"), Stackable: true},
		Rule{Code: "TINY", Rate: d("0.1"), MaxAmount: d("30"), Stackable: true},
	)
	e := New(c)

	t.Run("rate applies to unconsumed remainder", func(t *testing.T) {
		// stacked = 40, new = 60*0.5 = 30, cap = 100-40 = 60.
		got := e.Evaluate([]Item{item("100", 1, "X")}, "HALF", User{History: []string{"PRIOR", "PRIOR"}})

		require.True(t, got.Success)
		assert.Equal(t, OutcomeStackedApplied, got.Outcome)
		assert.True(t, d("30").Equal(got.Amount), "got %s", got.Amount)
		assert.True(t, d("30").Equal(got.FinalTotal), "got %s", got.FinalTotal)
	})

	t.Run("single prior entry", func(t *testing.T) {
		// stacked = 20, new = 80*0.5 = 40, cap = 100-20 = 80 -> 40.
		got := e.Evaluate([]Item{item("100", 1, "X")}, "HALF", User{History: []string{"PRIOR"}})

		require.True(t, got.Success)
		assert.True(t, d("40").Equal(got.Amount), "got %s", got.Amount)
		assert.True(t, d("40").Equal(got.FinalTotal), "got %s", got.FinalTotal)
	})

	t.Run("prior stacking consumes the cap", func(t *testing.T) {
		// stacked = 6*0.2*25 = 30, cap = 30-30 = 0.
		history := []string{"PRIOR", "PRIOR", "PRIOR", "PRIOR", "PRIOR", "PRIOR"}
		got := e.Evaluate([]Item{item("25", 1, "X")}, "TINY", User{History: history})

		assert.False(t, got.Success)
		assert.Equal(t, OutcomeNoAdditionalDiscount, got.Outcome)
		assert.True(t, d("25").Equal(got.FinalTotal), "got %s", got.FinalTotal)
	})
}

func TestEngine_StackedRecomputedAgainstCurrentCart(t *testing.T) {
	c := MustCatalog(
		Rule{Code: "AONLY", Rate: d("0.5"), MaxAmount: d("1000"), Categories: []string{"A"}, Stackable: true},
		Rule{Code: "ALL", Rate: d("0.1"), MaxAmount: d("1000"), Stackable: true},
	)
	e := New(c)
	user := User{History: []string{"AONLY"}}

	// No category A items: the prior code contributes nothing.
	got := e.Evaluate([]Item{item("100", 1, "B")}, "ALL", user)
	require.True(t, got.Success)
	assert.True(t, d("10").Equal(got.Amount), "got %s", got.Amount)
	assert.True(t, d("90").Equal(got.FinalTotal), "got %s", got.FinalTotal)

	// With category A: stacked = 50, new = (150-50)*0.1 = 10, final = 150-50-10.
	got = e.Evaluate([]Item{item("100", 1, "A"), item("50", 1, "B")}, "ALL", user)
	require.True(t, got.Success)
	assert.True(t, d("10").Equal(got.Amount), "got %s", got.Amount)
	assert.True(t, d("90").Equal(got.FinalTotal), "got %s", got.FinalTotal)
}

func TestEngine_Idempotent(t *testing.T) {
	e := newDefaultEngine(t)
	items := baseCart()
	user := User{Level: 1, History: []string{"WELCOME", "SAVE20"}}

	first := e.Evaluate(items, "SAVE10", user)
	second := e.Evaluate(items, "SAVE10", user)

	assert.Equal(t, first.Outcome, second.Outcome)
	assert.True(t, first.Amount.Equal(second.Amount))
	assert.True(t, first.FinalTotal.Equal(second.FinalTotal))
	assert.Equal(t, []string{"WELCOME", "SAVE20"}, user.History)
	assert.True(t, CartTotal(items).Equal(d("250")))
}

func TestEngine_Properties(t *testing.T) {
	e := newDefaultEngine(t)
	catalog := e.Catalog()

	prices := []string{"0", "9.99", "50", "100", "125.5", "400"}
	categories := []string{"A", "B"}
	histories := [][]string{
		nil,
		{"WELCOME"},
		{"SAVE10", "WELCOME"},
		{"SAVE20", "VIP50"},
		{"UNKNOWN", "WELCOME", "WELCOME"},
	}
	codes := []string{"SAVE10", "SAVE20", "WELCOME", "VIP50", "MISSING"}

	for _, p1 := range prices {
		for _, p2 := range prices {
			for _, cat := range categories {
				items := []Item{item(p1, 1, "A"), item(p2, 2, cat)}
				total := CartTotal(items)

				for _, hist := range histories {
					for level := 0; level <= 3; level++ {
						user := User{Level: level, History: hist}
						for _, code := range codes {
							got := e.Evaluate(items, code, user)
							rule, known := catalog.Lookup(code)

							if !known {
								assert.Equal(t, OutcomeInvalidCode, got.Outcome)
								assert.True(t, got.Amount.IsZero())
								assert.True(t, total.Equal(got.FinalTotal))
								continue
							}
							if !got.Success {
								assert.True(t, got.Amount.IsZero())
								assert.True(t, total.Equal(got.FinalTotal))
								continue
							}

							assert.True(t, got.Amount.IsPositive() || got.Outcome == OutcomeApplied)
							assert.True(t, got.Amount.LessThanOrEqual(rule.MaxAmount),
								"%s amount %s above max %s", code, got.Amount, rule.MaxAmount)
							if rule.Exclusive {
								assert.Equal(t, OutcomeApplied, got.Outcome)
								assert.True(t, got.FinalTotal.Add(got.Amount).Equal(total))
							} else {
								assert.Equal(t, OutcomeStackedApplied, got.Outcome)
								stacked := stackedDiscount(catalog, items, code, hist)
								assert.True(t, got.FinalTotal.Add(got.Amount).Add(stacked).Equal(total))
							}
						}
					}
				}
			}
		}
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := newDefaultEngine(t)
	items := baseCart()
	user := User{Level: 2, History: []string{"WELCOME"}}

	done := make(chan Decision, 16)
	for range 16 {
		go func() {
			done <- e.Evaluate(items, "SAVE20", user)
		}()
	}
	for range 16 {
		got := <-done
		assert.Equal(t, OutcomeApplied, got.Outcome)
		assert.True(t, d("40").Equal(got.Amount))
	}
}
