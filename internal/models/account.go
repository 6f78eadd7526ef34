package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the current balance for one account identity.
// The balance is never negative; it only changes through the ledger engine.
type Account struct {
	ID        string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}
