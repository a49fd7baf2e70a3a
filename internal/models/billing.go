package models

import "time"

type Plan struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	PriceUSD     float64   `json:"price_usd" db:"price_usd"`
	BillingCycle string    `json:"billing_cycle" db:"billing_cycle"`
	Description  string    `json:"description" db:"description"`
	MaxJobs      int       `json:"max_jobs" db:"max_jobs"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Subscription struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	PlanID    string     `json:"plan_id" db:"plan_id"`
	Status    string     `json:"status" db:"status"`
	StartsAt  time.Time  `json:"starts_at" db:"starts_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty" db:"ends_at"`
	Notes     *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	// Populated from the joined plan on reads.
	PlanName string `json:"plan_name" db:"plan_name"`
	MaxJobs  int    `json:"max_jobs" db:"max_jobs"`
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// PaymentRequest is a user-submitted proof of a token purchase awaiting
// admin review. Approval credits the requested tokens through the ledger.
type PaymentRequest struct {
	ID         string        `json:"id" db:"id"`
	UserID     string        `json:"user_id" db:"user_id"`
	AmountUSD  float64       `json:"amount_usd" db:"amount_usd"`
	Tokens     int64         `json:"tokens" db:"tokens"`
	Reference  string        `json:"reference" db:"reference"`
	Status     PaymentStatus `json:"status" db:"status"`
	ReviewedBy *string       `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt *time.Time    `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}
