package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maptitesalle/mylittlegymcoach/internal/database"
)

const planColumns = `id, user_id, request_id, content, recipes, ingredients, created_at, updated_at`

// PlanRepository is a database-backed repository for nutrition plans.
type PlanRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *database.DB) *PlanRepository {
	return &PlanRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// GetByUserAndRequest returns the plan produced by requestID for userID, or nil.
func (r *PlanRepository) GetByUserAndRequest(ctx context.Context, userID, requestID string) (*NutritionPlan, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+planColumns+` FROM nutrition_plans
		WHERE user_id = ? AND request_id = ?`), userID, requestID)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s for user: %w", requestID, err)
	}
	return plan, nil
}

// GetLatestByUser returns the most recently created plan of userID, or nil.
func (r *PlanRepository) GetLatestByUser(ctx context.Context, userID string) (*NutritionPlan, error) {
	plans, err := r.ListRecentByUserID(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, nil
	}
	return &plans[0], nil
}

// ListRecentByUserID retrieves the N most recent plans for a given user.
func (r *PlanRepository) ListRecentByUserID(ctx context.Context, userID string, limit int) ([]NutritionPlan, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(`
		SELECT `+planColumns+` FROM nutrition_plans
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent plans for user: %w", err)
	}
	defer rows.Close()

	var plans []NutritionPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

// UpsertPlan updates the plan stored for (UserID, RequestID) in place or
// inserts it. Plans without a request id are always inserted.
func (r *PlanRepository) UpsertPlan(ctx context.Context, in PlanInput) (*NutritionPlan, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("plan requires a user id")
	}
	if in.Recipes == nil {
		in.Recipes = []Recipe{}
	}
	if in.Ingredients == nil {
		in.Ingredients = []string{}
	}
	recipes, err := json.Marshal(in.Recipes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipes: %w", err)
	}
	ingredients, err := json.Marshal(in.Ingredients)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingredients: %w", err)
	}

	query := `
		INSERT INTO nutrition_plans (user_id, request_id, content, recipes, ingredients, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if in.RequestID != "" {
		query += `
		ON CONFLICT (user_id, request_id) DO UPDATE SET
			content = excluded.content,
			recipes = excluded.recipes,
			ingredients = excluded.ingredients,
			updated_at = excluded.updated_at`
	}
	query += `
		RETURNING ` + planColumns

	now := r.now()
	row := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(query),
		in.UserID, nullString(in.RequestID), in.Content, string(recipes), string(ingredients), now, now)
	plan, err := scanPlan(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert plan: %w", err)
	}
	return plan, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*NutritionPlan, error) {
	var (
		p           NutritionPlan
		requestID   sql.NullString
		recipes     string
		ingredients string
		createdAt   database.Time
		updatedAt   database.Time
	)
	if err := row.Scan(&p.ID, &p.UserID, &requestID, &p.Content, &recipes, &ingredients, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	p.RequestID = requestID.String
	if err := json.Unmarshal([]byte(recipes), &p.Recipes); err != nil {
		return nil, fmt.Errorf("failed to decode recipes of plan %d: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(ingredients), &p.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to decode ingredients of plan %d: %w", p.ID, err)
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
