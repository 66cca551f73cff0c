package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-engine/internal/catalog"
	"github.com/xenking/promo-engine/internal/domain/discount"
)

var (
	// ErrRuleExists is returned by Insert when the code is already stored.
	ErrRuleExists = errors.New("discount rule already exists")
	// ErrRuleNotFound is returned when no active rule has the code.
	ErrRuleNotFound = errors.New("discount rule not found")
)

const (
	ruleColumns = `code, rate, min_amount, max_amount, categories,
		exclusive, stackable, required_level, description`

	listRulesSQL = `SELECT ` + ruleColumns + `
		FROM discount_rules WHERE active = TRUE ORDER BY code`

	getRuleByCodeSQL = `SELECT ` + ruleColumns + `
		FROM discount_rules WHERE code = $1 AND active = TRUE`

	insertRuleSQL = `INSERT INTO discount_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	upsertRuleSQL = insertRuleSQL + `
		ON CONFLICT (code) DO UPDATE SET
			rate = EXCLUDED.rate,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			categories = EXCLUDED.categories,
			exclusive = EXCLUDED.exclusive,
			stackable = EXCLUDED.stackable,
			required_level = EXCLUDED.required_level,
			description = EXCLUDED.description,
			active = TRUE`

	deactivateRuleSQL = `UPDATE discount_rules SET active = FALSE WHERE code = $1 AND active = TRUE`
)

var _ catalog.Source = (*RuleRepository)(nil)

// RuleRepository reads and writes discount rules backed by PostgreSQL.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository returns a RuleRepository that uses the given pool.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

// ListRules returns all active rules ordered by code.
func (r *RuleRepository) ListRules(ctx context.Context) ([]discount.Rule, error) {
	rows, err := r.pool.Query(ctx, listRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discount rules: %w", err)
	}

	rules, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("listing discount rules: %w", err)
	}
	return rules, nil
}

// FindByCode looks up an active rule by its exact code.
func (r *RuleRepository) FindByCode(ctx context.Context, code string) (*discount.Rule, error) {
	rows, err := r.pool.Query(ctx, getRuleByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount rule %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("finding discount rule %q: %w", code, err)
	}
	return &rule, nil
}

// Insert stores a new rule. It returns ErrRuleExists when the code is taken.
func (r *RuleRepository) Insert(ctx context.Context, rule discount.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, insertRuleSQL, ruleArgs(rule)...); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrRuleExists, "code %q", rule.Code)
		}
		return fmt.Errorf("inserting discount rule %q: %w", rule.Code, err)
	}
	return nil
}

// Upsert stores the rule, replacing any existing rule with the same code.
func (r *RuleRepository) Upsert(ctx context.Context, rule discount.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertRuleSQL, ruleArgs(rule)...); err != nil {
		return fmt.Errorf("upserting discount rule %q: %w", rule.Code, err)
	}
	return nil
}

// Deactivate hides a rule from future catalog loads.
func (r *RuleRepository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deactivateRuleSQL, code)
	if err != nil {
		return fmt.Errorf("deactivating discount rule %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func ruleArgs(rule discount.Rule) []any {
	categories := rule.Categories
	if categories == nil {
		categories = []string{}
	}
	return []any{
		rule.Code, rule.Rate, rule.MinAmount, rule.MaxAmount, categories,
		rule.Exclusive, rule.Stackable, rule.RequiredLevel, rule.Description,
	}
}

func scanRule(row pgx.CollectableRow) (discount.Rule, error) {
	var (
		rule  discount.Rule
		level int32
	)
	err := row.Scan(
		&rule.Code, &rule.Rate, &rule.MinAmount, &rule.MaxAmount, &rule.Categories,
		&rule.Exclusive, &rule.Stackable, &level, &rule.Description,
	)
	rule.RequiredLevel = int(level)
	if len(rule.Categories) == 0 {
		rule.Categories = nil
	}
	return rule, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
