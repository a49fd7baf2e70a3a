package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aliraza-monster/crosspost-automation/internal/models"
)

// LedgerRepository is the sole authority for mutating a user's token
// balance. Every mutation writes the new balance and appends one ledger row
// in the same transaction, so balance and ledger can never diverge.
type LedgerRepository interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Adjust(ctx context.Context, params AdjustParams) (int64, error)
	// ApprovePaymentRequest settles a pending request and credits its
	// tokens in one transaction. A request that is absent or already
	// reviewed returns ErrPaymentRequestNotFound and credits nothing.
	ApprovePaymentRequest(ctx context.Context, requestID, adminUserID string) (models.PaymentRequest, int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.TokenLedgerEntry, error)
}

type AdjustParams struct {
	UserID           string
	DeltaTokens      int64
	Reason           string
	PaymentRequestID *string
	AdminUserID      *string
	Metadata         map[string]interface{}
}

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// GetBalance is a pure read. A missing user reads as balance 0 at this
// boundary; Adjust treats a missing user as an error instead.
func (r *ledgerRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx,
		`SELECT token_balance FROM users WHERE id = $1`, userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Adjust applies a signed delta to the user's balance. The read, the balance
// update and the ledger insert run in one transaction with the user row
// locked, so two concurrent debits cannot both observe sufficient balance.
func (r *ledgerRepository) Adjust(ctx context.Context, params AdjustParams) (int64, error) {
	if params.DeltaTokens == 0 {
		return 0, fmt.Errorf("%w: token delta must be non-zero", ErrInvalidArgument)
	}
	reason := strings.TrimSpace(params.Reason)
	if reason == "" {
		return 0, fmt.Errorf("%w: reason is required", ErrInvalidArgument)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin adjust transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT token_balance FROM users WHERE id = $1 FOR UPDATE`, params.UserID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}

	newBalance := current + params.DeltaTokens
	if newBalance < 0 {
		return 0, ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET token_balance = $1 WHERE id = $2`, newBalance, params.UserID,
	); err != nil {
		return 0, err
	}

	var metadata interface{}
	if len(params.Metadata) > 0 {
		bytes, err := json.Marshal(params.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = bytes
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO token_ledger (user_id, delta_tokens, reason, payment_request_id, admin_user_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, params.UserID, params.DeltaTokens, reason, params.PaymentRequestID, params.AdminUserID, metadata); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ApprovePaymentRequest flips the request to approved and credits the
// purchased tokens atomically. The guarded status update is the settle-once
// gate; because the credit runs in the same transaction, a reviewer who
// loses the gate cannot credit either.
func (r *ledgerRepository) ApprovePaymentRequest(ctx context.Context, requestID, adminUserID string) (models.PaymentRequest, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PaymentRequest{}, 0, fmt.Errorf("begin approval transaction: %w", err)
	}
	defer tx.Rollback()

	const settle = `
		UPDATE payment_requests
		SET status = 'approved', reviewed_by = $1, reviewed_at = NOW()
		WHERE id = $2 AND status = 'pending'
		RETURNING ` + paymentColumns
	req, err := scanPaymentRequest(tx.QueryRowContext(ctx, settle, adminUserID, requestID))
	if err == sql.ErrNoRows {
		return models.PaymentRequest{}, 0, ErrPaymentRequestNotFound
	}
	if err != nil {
		return models.PaymentRequest{}, 0, err
	}

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT token_balance FROM users WHERE id = $1 FOR UPDATE`, req.UserID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return models.PaymentRequest{}, 0, ErrUserNotFound
	}
	if err != nil {
		return models.PaymentRequest{}, 0, err
	}

	newBalance := current + req.Tokens
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET token_balance = $1 WHERE id = $2`, newBalance, req.UserID,
	); err != nil {
		return models.PaymentRequest{}, 0, err
	}

	reason := fmt.Sprintf("Payment request approved (%s)", req.Reference)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO token_ledger (user_id, delta_tokens, reason, payment_request_id, admin_user_id)
		VALUES ($1, $2, $3, $4, $5)
	`, req.UserID, req.Tokens, reason, req.ID, adminUserID); err != nil {
		return models.PaymentRequest{}, 0, err
	}

	if err := tx.Commit(); err != nil {
		return models.PaymentRequest{}, 0, err
	}
	return req, newBalance, nil
}

func (r *ledgerRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.TokenLedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
		SELECT id, user_id, delta_tokens, reason, payment_request_id, admin_user_id, metadata, created_at
		FROM token_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.TokenLedgerEntry, 0, limit)
	for rows.Next() {
		var (
			entry       models.TokenLedgerEntry
			paymentID   sql.NullString
			adminUserID sql.NullString
			metadataRaw []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.DeltaTokens,
			&entry.Reason,
			&paymentID,
			&adminUserID,
			&metadataRaw,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if paymentID.Valid {
			val := paymentID.String
			entry.PaymentRequestID = &val
		}
		if adminUserID.Valid {
			val := adminUserID.String
			entry.AdminUserID = &val
		}
		if len(metadataRaw) > 0 {
			entry.Metadata = metadataRaw
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
