package discount

// Option configures an Engine.
type Option func(*Engine)

// WithNoopTotalPolicy selects the final total reported for a stackable code
// that adds no further discount. The default is NoopKeepsCartTotal.
func WithNoopTotalPolicy(p NoopTotalPolicy) Option {
	return func(e *Engine) {
		e.noop = p
	}
}

// Engine evaluates discount codes against a fixed catalog. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	catalog *Catalog
	noop    NoopTotalPolicy
}

// New creates an Engine over the given catalog.
func New(catalog *Catalog, opts ...Option) *Engine {
	e := &Engine{catalog: catalog}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Catalog returns the catalog the engine evaluates against.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// NoopTotalPolicy returns the configured no-op stacking policy.
func (e *Engine) NoopTotalPolicy() NoopTotalPolicy {
	return e.noop
}

// Evaluate decides whether code applies to the cart for user and computes the
// resulting discount and total. Items are expected to be valid (see
// ValidateItems); the result is always a Decision, never an error.
func (e *Engine) Evaluate(items []Item, code string, user User) Decision {
	el, d, ok := validate(e.catalog, items, code, user)
	if !ok {
		return d
	}
	return calculate(e.catalog, items, code, user, el, e.noop)
}
