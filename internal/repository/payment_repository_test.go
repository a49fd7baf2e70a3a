package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Aliraza-monster/crosspost-automation/internal/models"
)

var paymentRowColumns = []string{
	"id", "user_id", "amount_usd", "tokens", "reference",
	"status", "reviewed_by", "reviewed_at", "created_at",
}

func TestPaymentRepository_SetReviewed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)

	now := time.Now()
	mock.ExpectQuery(`UPDATE payment_requests\s+SET status = \$1`).
		WithArgs("approved", "admin-1", "req-1").
		WillReturnRows(sqlmock.NewRows(paymentRowColumns).
			AddRow("req-1", "user-1", 49.0, int64(50), "wire-123", "approved", "admin-1", now, now))

	reviewed, err := repo.SetReviewed(context.Background(), "req-1", models.PaymentStatusApproved, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	require.Equal(t, "admin-1", *reviewed.ReviewedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_SetReviewed_AlreadySettled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)

	// The guarded update matches no row for an already-reviewed request.
	mock.ExpectQuery(`UPDATE payment_requests\s+SET status = \$1`).
		WithArgs("approved", "admin-2", "req-1").
		WillReturnRows(sqlmock.NewRows(paymentRowColumns))

	_, err = repo.SetReviewed(context.Background(), "req-1", models.PaymentStatusApproved, "admin-2")
	require.ErrorIs(t, err, ErrPaymentRequestNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM payment_requests WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(paymentRowColumns))

	_, err = repo.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrPaymentRequestNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
