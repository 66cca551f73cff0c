// Package evaluation wraps the discount engine for use by transports: it
// enforces cart preconditions and records logs, traces and metrics.
package evaluation

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/promo-engine/internal/domain/discount"
)

const instrumentationName = "github.com/xenking/promo-engine/internal/domain/evaluation"

// Request is a single evaluation request.
type Request struct {
	Code  string
	Items []discount.Item
	User  discount.User
}

// Result is the decision together with the identifier used in logs and spans.
type Result struct {
	ID       string
	Decision discount.Decision
}

// Service evaluates discount codes on behalf of callers.
type Service struct {
	engine *discount.Engine
	tracer trace.Tracer

	evaluations metric.Int64Counter
	amounts     metric.Float64Histogram
}

// NewService creates a Service over the engine using the given telemetry
// providers.
func NewService(engine *discount.Engine, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter(instrumentationName)

	evaluations, err := meter.Int64Counter("promo.evaluations",
		metric.WithDescription("Discount code evaluations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create evaluations counter")
	}

	amounts, err := meter.Float64Histogram("promo.discount.amount",
		metric.WithDescription("Discount amount granted by successful evaluations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create amount histogram")
	}

	return &Service{
		engine:      engine,
		tracer:      tp.Tracer(instrumentationName),
		evaluations: evaluations,
		amounts:     amounts,
	}, nil
}

// Evaluate validates the cart and runs the engine. Domain rejections are
// reported through the Decision; the error is non-nil only for malformed
// input (wrapping discount.ErrInvalidItem).
func (s *Service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	id := uuid.New().String()

	ctx, span := s.tracer.Start(ctx, "discount.Evaluate",
		trace.WithAttributes(
			attribute.String("promo.evaluation_id", id),
			attribute.String("promo.code", req.Code),
			attribute.Int("promo.items", len(req.Items)),
			attribute.Int("promo.history", len(req.User.History)),
		),
	)
	defer span.End()

	lg := zctx.From(ctx).With(
		zap.String("evaluation_id", id),
		zap.String("code", req.Code),
		zap.String("user_id", req.User.ID),
	)

	if err := discount.ValidateItems(req.Items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid cart")
		lg.Warn("Rejected cart", zap.Error(err))
		return nil, errors.Wrap(err, "validate cart")
	}

	d := s.engine.Evaluate(req.Items, req.Code, req.User)

	outcome := attribute.String("outcome", d.Outcome.String())
	s.evaluations.Add(ctx, 1, metric.WithAttributes(outcome))
	if d.Success {
		s.amounts.Record(ctx, d.Amount.InexactFloat64(), metric.WithAttributes(outcome))
	}
	span.SetAttributes(
		attribute.String("promo.outcome", d.Outcome.String()),
		attribute.Bool("promo.success", d.Success),
	)

	lg.Debug("Evaluated discount code",
		zap.String("outcome", d.Outcome.String()),
		zap.Stringer("amount", d.Amount),
		zap.Stringer("final_total", d.FinalTotal),
	)

	return &Result{ID: id, Decision: d}, nil
}

// Rules returns the rules of the underlying catalog.
func (s *Service) Rules() []discount.Rule {
	return s.engine.Catalog().Rules()
}
