// Package handler exposes discount evaluation over the generated OpenAPI
// server.
package handler

import (
	"context"

	"github.com/xenking/promo-engine/gen/oas"
	"github.com/xenking/promo-engine/internal/domain/discount"
	"github.com/xenking/promo-engine/internal/domain/evaluation"
)

// Compile-time check ensuring Handler satisfies the ogen Handler interface.
var _ oas.Handler = (*Handler)(nil)

// Evaluator is the subset of evaluation.Service used by the handler.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (*evaluation.Result, error)
	Rules() []discount.Rule
}

// Handler implements the ogen-generated Handler interface, delegating to the
// evaluation service.
type Handler struct {
	oas.UnimplementedHandler

	svc Evaluator
}

// New creates a Handler backed by svc.
func New(svc Evaluator) *Handler {
	return &Handler{svc: svc}
}
