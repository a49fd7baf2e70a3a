package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Aliraza-monster/crosspost-automation/internal/models"
)

var ErrPaymentRequestNotFound = errors.New("payment request not found")

type PaymentRepository interface {
	Create(ctx context.Context, req models.PaymentRequest) (models.PaymentRequest, error)
	Get(ctx context.Context, requestID string) (models.PaymentRequest, error)
	ListPending(ctx context.Context) ([]models.PaymentRequest, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.PaymentRequest, error)
	// SetReviewed moves a pending request to approved/rejected. Returns
	// ErrPaymentRequestNotFound when the request is absent or already
	// reviewed, so a request can only be settled once.
	SetReviewed(ctx context.Context, requestID string, status models.PaymentStatus, adminUserID string) (models.PaymentRequest, error)
}

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, user_id, amount_usd, tokens, reference, status, reviewed_by, reviewed_at, created_at`

func (r *paymentRepository) Create(ctx context.Context, req models.PaymentRequest) (models.PaymentRequest, error) {
	const query = `
		INSERT INTO payment_requests (user_id, amount_usd, tokens, reference, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + paymentColumns
	row := r.db.QueryRowContext(ctx, query, req.UserID, req.AmountUSD, req.Tokens, req.Reference)
	return scanPaymentRequest(row)
}

func (r *paymentRepository) Get(ctx context.Context, requestID string) (models.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE id = $1`
	req, err := scanPaymentRequest(r.db.QueryRowContext(ctx, query, requestID))
	if err == sql.ErrNoRows {
		return models.PaymentRequest{}, ErrPaymentRequestNotFound
	}
	return req, err
}

func (r *paymentRepository) ListPending(ctx context.Context) ([]models.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE status = 'pending' ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPaymentRequests(rows)
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.PaymentRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPaymentRequests(rows)
}

func (r *paymentRepository) SetReviewed(ctx context.Context, requestID string, status models.PaymentStatus, adminUserID string) (models.PaymentRequest, error) {
	const query = `
		UPDATE payment_requests
		SET status = $1, reviewed_by = $2, reviewed_at = NOW()
		WHERE id = $3 AND status = 'pending'
		RETURNING ` + paymentColumns
	req, err := scanPaymentRequest(r.db.QueryRowContext(ctx, query, status, adminUserID, requestID))
	if err == sql.ErrNoRows {
		return models.PaymentRequest{}, ErrPaymentRequestNotFound
	}
	return req, err
}

func scanPaymentRequest(row *sql.Row) (models.PaymentRequest, error) {
	var (
		req        models.PaymentRequest
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
	)
	if err := row.Scan(
		&req.ID, &req.UserID, &req.AmountUSD, &req.Tokens, &req.Reference,
		&req.Status, &reviewedBy, &reviewedAt, &req.CreatedAt,
	); err != nil {
		return models.PaymentRequest{}, err
	}
	if reviewedBy.Valid {
		val := reviewedBy.String
		req.ReviewedBy = &val
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		req.ReviewedAt = &t
	}
	return req, nil
}

func scanPaymentRequests(rows *sql.Rows) ([]models.PaymentRequest, error) {
	var requests []models.PaymentRequest
	for rows.Next() {
		var (
			req        models.PaymentRequest
			reviewedBy sql.NullString
			reviewedAt sql.NullTime
		)
		if err := rows.Scan(
			&req.ID, &req.UserID, &req.AmountUSD, &req.Tokens, &req.Reference,
			&req.Status, &reviewedBy, &reviewedAt, &req.CreatedAt,
		); err != nil {
			return nil, err
		}
		if reviewedBy.Valid {
			val := reviewedBy.String
			req.ReviewedBy = &val
		}
		if reviewedAt.Valid {
			t := reviewedAt.Time
			req.ReviewedAt = &t
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}
