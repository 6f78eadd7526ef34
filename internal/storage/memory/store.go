package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/banking-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/banking-ledger-service/internal/ledger"
	"github.com/sheikh-saqib/banking-ledger-service/internal/models"
)

// MemoryLedgerStore is an in-memory implementation of
// interfaces.LedgerStore, used by tests and for running without a
// database. A single mutex guards balances, journal, and idempotency
// state together, so every Apply is all-or-nothing by construction.
type MemoryLedgerStore struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	entries  []models.TransactionRecord
	seenKeys map[string]string    // idempotency key -> event id
	lastAt   map[string]time.Time // per-account timestamp watermark
	nextID   int64
}

// NewMemoryLedgerStore creates an empty in-memory ledger store.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts: make(map[string]models.Account),
		seenKeys: make(map[string]string),
		lastAt:   make(map[string]time.Time),
	}
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[accountID]; exists {
		return ledger.ErrAccountExists
	}
	m.accounts[accountID] = models.Account{
		ID:        accountID,
		Balance:   decimal.Zero,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *MemoryLedgerStore) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return decimal.Zero, ledger.ErrNotFound
	}
	return acct.Balance, nil
}

// Apply validates every balance change before touching anything, then
// commits all changes and records in one critical section. A rejected
// mutation leaves the store exactly as it was.
func (m *MemoryLedgerStore) Apply(ctx context.Context, mut interfaces.Mutation) (interfaces.ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mut.IdempotencyKey != "" {
		if _, seen := m.seenKeys[mut.IdempotencyKey]; seen {
			return interfaces.ApplyResult{}, ledger.ErrDuplicate
		}
	}

	// dry run: changes may touch the same account more than once
	// (self-transfer), so accumulate per-account before judging
	tentative := make(map[string]decimal.Decimal, len(mut.Changes))
	for _, ch := range mut.Changes {
		bal, staged := tentative[ch.AccountID]
		if !staged {
			acct, ok := m.accounts[ch.AccountID]
			if !ok {
				return interfaces.ApplyResult{}, ledger.ErrNotFound
			}
			bal = acct.Balance
		}
		bal = bal.Add(ch.Delta)
		if bal.IsNegative() {
			return interfaces.ApplyResult{}, ledger.ErrInsufficientFunds
		}
		tentative[ch.AccountID] = bal
	}

	// commit
	for id, bal := range tentative {
		acct := m.accounts[id]
		acct.Balance = bal
		m.accounts[id] = acct
	}

	now := time.Now()
	out := make([]models.TransactionRecord, 0, len(mut.Records))
	for _, rec := range mut.Records {
		m.nextID++
		rec.ID = m.nextID
		ts := now
		if last, ok := m.lastAt[rec.AccountID]; ok && ts.Before(last) {
			ts = last
		}
		m.lastAt[rec.AccountID] = ts
		rec.CreatedAt = ts
		m.entries = append(m.entries, rec)
		out = append(out, rec)
	}

	if mut.IdempotencyKey != "" {
		m.seenKeys[mut.IdempotencyKey] = mut.EventID
	}
	return interfaces.ApplyResult{Records: out, Balances: tentative}, nil
}

func (m *MemoryLedgerStore) EntriesByAccount(ctx context.Context, accountID string) ([]models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountID]; !ok {
		return nil, ledger.ErrNotFound
	}

	var result []models.TransactionRecord
	for _, e := range m.entries {
		if e.AccountID == accountID {
			result = append(result, e)
		}
	}
	// newest first; records sharing a timestamp in ascending id order
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Compile-time check: MemoryLedgerStore implements LedgerStore.
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
