package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/gen/oas"
	"github.com/xenking/promo-engine/internal/domain/discount"
	"github.com/xenking/promo-engine/internal/domain/evaluation"
)

// EvaluateDiscount converts the OAS request to a domain request, evaluates the
// code and maps the decision (or error) back to an OAS response. Rejections
// by the rules are successful responses with Success set to false.
func (h *Handler) EvaluateDiscount(ctx context.Context, req *oas.EvaluateRequest) (oas.EvaluateDiscountRes, error) {
	items := make([]discount.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = discount.Item{
			Name:     item.Name.Or(""),
			Price:    decimal.NewFromFloat(item.Price),
			Quantity: item.Quantity,
			Category: item.Category.Or(""),
		}
	}

	var user discount.User
	if u, ok := req.User.Get(); ok {
		user = discount.User{
			ID:      u.ID.Or(""),
			Level:   u.Level.Or(0),
			History: u.History,
		}
	}

	res, err := h.svc.Evaluate(ctx, evaluation.Request{
		Code:  req.Code,
		Items: items,
		User:  user,
	})
	if err != nil {
		return mapEvaluateError(err)
	}

	d := res.Decision
	return &oas.Decision{
		EvaluationId: res.ID,
		Success:      d.Success,
		Outcome:      oas.DecisionOutcome(d.Outcome.String()),
		Message:      d.Message,
		Amount:       d.Amount.InexactFloat64(),
		FinalTotal:   d.FinalTotal.InexactFloat64(),
	}, nil
}

// ListDiscountRules returns the catalog ordered by code.
func (h *Handler) ListDiscountRules(context.Context) ([]oas.DiscountRule, error) {
	rules := h.svc.Rules()
	out := make([]oas.DiscountRule, len(rules))
	for i, r := range rules {
		categories := r.Categories
		if categories == nil {
			categories = []string{}
		}
		out[i] = oas.DiscountRule{
			Code:          r.Code,
			Rate:          r.Rate.InexactFloat64(),
			MinAmount:     r.MinAmount.InexactFloat64(),
			MaxAmount:     r.MaxAmount.InexactFloat64(),
			Categories:    categories,
			Exclusive:     r.Exclusive,
			Stackable:     r.Stackable,
			RequiredLevel: r.RequiredLevel,
			Description:   r.Description,
		}
	}
	return out, nil
}

// mapEvaluateError converts domain errors to OAS error responses. Anything
// else is left to the server error handler as a 500.
func mapEvaluateError(err error) (oas.EvaluateDiscountRes, error) {
	var itemErr *discount.ItemError
	if errors.As(err, &itemErr) {
		return &oas.EvaluateDiscountUnprocessableEntity{
			Code:    http.StatusUnprocessableEntity,
			Message: itemErr.Error(),
		}, nil
	}

	if errors.Is(err, discount.ErrInvalidItem) {
		return &oas.EvaluateDiscountUnprocessableEntity{
			Code:    http.StatusUnprocessableEntity,
			Message: err.Error(),
		}, nil
	}

	return nil, err
}
