package models

import (
	"encoding/json"
	"time"
)

// TokenLedgerEntry is an immutable record of one balance mutation. A user's
// token balance is by construction the running sum of their deltas.
type TokenLedgerEntry struct {
	ID               string          `json:"id" db:"id"`
	UserID           string          `json:"user_id" db:"user_id"`
	DeltaTokens      int64           `json:"delta_tokens" db:"delta_tokens"`
	Reason           string          `json:"reason" db:"reason"`
	PaymentRequestID *string         `json:"payment_request_id,omitempty" db:"payment_request_id"`
	AdminUserID      *string         `json:"admin_user_id,omitempty" db:"admin_user_id"`
	Metadata         json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}
