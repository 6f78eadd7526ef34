package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a journal record.
type Kind string

const (
	KindDeposit     Kind = "deposit"
	KindWithdraw    Kind = "withdraw"
	KindTransferOut Kind = "transfer_out"
	KindTransferIn  Kind = "transfer_in"
)

// IsTransfer reports whether the kind is one half of a transfer pair.
func (k Kind) IsTransfer() bool {
	return k == KindTransferOut || k == KindTransferIn
}

// TransactionRecord is a single immutable journal row for one account.
// A deposit or withdrawal produces one record; a transfer produces two
// (a transfer_out on the source and a transfer_in on the destination)
// that share the same EventID and amount and name each other in
// Counterparty. ID and CreatedAt are assigned by the journal at append
// time: ids increase monotonically, timestamps never decrease within
// one account. Amount is always positive; Kind says which direction the
// money moved.
type TransactionRecord struct {
	ID           int64           `json:"id"`
	EventID      string          `json:"event_id"`
	AccountID    string          `json:"account_id"`
	Kind         Kind            `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
