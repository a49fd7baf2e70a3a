package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Aliraza-monster/crosspost-automation/internal/models"
)

type SubscriptionRepository interface {
	// GetActiveForUser returns the user's most recent active subscription
	// joined with its plan. The bool is false when the user has none.
	GetActiveForUser(ctx context.Context, userID string, now time.Time) (models.Subscription, bool, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetActiveForUser(ctx context.Context, userID string, now time.Time) (models.Subscription, bool, error) {
	const query = `
		SELECT s.id, s.user_id, s.plan_id, s.status, s.starts_at, s.ends_at, s.notes, s.created_at,
		       p.name, p.max_jobs
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.user_id = $1
		  AND s.status = 'active'
		  AND p.active = TRUE
		  AND (s.ends_at IS NULL OR s.ends_at >= $2)
		ORDER BY s.created_at DESC
		LIMIT 1
	`
	var (
		sub    models.Subscription
		endsAt sql.NullTime
		notes  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, userID, now).Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.StartsAt, &endsAt, &notes, &sub.CreatedAt,
		&sub.PlanName, &sub.MaxJobs,
	)
	if err == sql.ErrNoRows {
		return models.Subscription{}, false, nil
	}
	if err != nil {
		return models.Subscription{}, false, err
	}
	if endsAt.Valid {
		t := endsAt.Time
		sub.EndsAt = &t
	}
	if notes.Valid {
		val := notes.String
		sub.Notes = &val
	}
	return sub, true, nil
}

func (r *subscriptionRepository) ListPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price_usd, billing_cycle, description, max_jobs, active, created_at
		FROM plans
		WHERE active = TRUE
		ORDER BY price_usd ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var plan models.Plan
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.PriceUSD, &plan.BillingCycle, &plan.Description, &plan.MaxJobs, &plan.Active, &plan.CreatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}
