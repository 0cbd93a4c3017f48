package trainingplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
)

var ErrPlanNotFound = errors.New("training plan not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, plan Plan) (_ *Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainingplan.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("plan.id", plan.ID))

	planJson, err := json.Marshal(plan.PlanData)
	if err != nil {
		return nil, fmt.Errorf("marshal plan data: %w", err)
	}
	summaryJson, err := json.Marshal(plan.HistorySummary)
	if err != nil {
		return nil, fmt.Errorf("marshal history summary: %w", err)
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO training_plans
				(id, user_id, plan_type, goal, plan, history_summary, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		plan.ID, plan.UserID, plan.PlanType, plan.Goal, planJson, summaryJson, plan.Status, plan.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert plan: %w", err)
	}

	return &plan, nil
}

// GetOwned returns the plan only when it belongs to the given user.
func (r *Repo) GetOwned(ctx context.Context, id, userID string) (_ *Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainingplan.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, plan_type, goal, plan, history_summary, status, created_at
			FROM training_plans
			WHERE id = $1 AND user_id = $2;`,
		id, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	plans, err := r.rows2plans(rows)
	if err != nil {
		return nil, err
	}

	if len(plans) != 1 {
		return nil, ErrPlanNotFound
	}

	return &plans[0], nil
}

// List returns the user's plans newest first, optionally filtered by status.
func (r *Repo) List(ctx context.Context, userID, status string) (_ []Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainingplan.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user_id", userID))
	span.SetAttributes(attribute.String("status", status))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, plan_type, goal, plan, history_summary, status, created_at
			FROM training_plans
			WHERE user_id = $1
			AND ($2::text = '' OR status = $2)
			ORDER BY created_at DESC
			LIMIT 100;`,
		userID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2plans(rows)
}

func (r *Repo) rows2plans(rows pgx.Rows) ([]Plan, error) {
	var plans []Plan
	for rows.Next() {
		var p Plan
		var planBytes, summaryBytes []byte
		var createdAt time.Time
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.PlanType, &p.Goal, &planBytes, &summaryBytes, &p.Status, &createdAt,
		); err != nil {
			return nil, err
		}
		p.CreatedAt = createdAt

		if len(planBytes) > 0 {
			if err := json.Unmarshal(planBytes, &p.PlanData); err != nil {
				return nil, fmt.Errorf("unmarshal plan data for plan %s: %w", p.ID, err)
			}
		}
		if len(summaryBytes) > 0 {
			if err := json.Unmarshal(summaryBytes, &p.HistorySummary); err != nil {
				return nil, fmt.Errorf("unmarshal history summary for plan %s: %w", p.ID, err)
			}
		}

		plans = append(plans, p)
	}

	if plans == nil {
		plans = make([]Plan, 0)
	}

	return plans, nil
}
