package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/banking-ledger-service/internal/models"
)

// BalanceChange is one account-level delta inside a Mutation. Delta may be
// negative; a delta that would take the balance below zero must reject the
// whole Mutation.
type BalanceChange struct {
	AccountID string
	Delta     decimal.Decimal
}

// Mutation is the atomic unit a ledger operation asks the store to commit:
// every balance change and every journal record land together or not at all.
// Records are templates; the store assigns ids and timestamps.
type Mutation struct {
	EventID        string
	IdempotencyKey string // optional; replays fail with ledger.ErrDuplicate
	Changes        []BalanceChange
	Records        []models.TransactionRecord
}

// ApplyResult reports a committed mutation: the appended records with
// ids and timestamps filled in, and the post-commit balance of every
// account the mutation touched. Returning the balances with the commit
// means no separate read is needed to report an operation's outcome.
type ApplyResult struct {
	Records  []models.TransactionRecord
	Balances map[string]decimal.Decimal
}

// AccountStore is the source of truth for current balances.
type AccountStore interface {
	// CreateAccount registers a new zero-balance account.
	CreateAccount(ctx context.Context, accountID string) error
	// GetBalance returns the committed balance for the account.
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Journal is the source of truth for what happened.
type Journal interface {
	// EntriesByAccount returns the account's committed records, newest
	// first; records sharing a timestamp are ordered by ascending id.
	EntriesByAccount(ctx context.Context, accountID string) ([]models.TransactionRecord, error)
}

// LedgerStore combines balances and journal behind one transactional
// boundary.
type LedgerStore interface {
	AccountStore
	Journal

	// Apply commits the mutation atomically. On any failure the store
	// is left exactly as before the call.
	Apply(ctx context.Context, mut Mutation) (ApplyResult, error)
}
