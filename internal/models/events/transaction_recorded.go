package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecorded is published after a ledger operation has committed.
type TransactionRecorded struct {
	EventID        string          `json:"event_id"`
	Kind           string          `json:"kind"`
	AccountID      string          `json:"account_id"`
	Counterparty   string          `json:"counterparty,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}
