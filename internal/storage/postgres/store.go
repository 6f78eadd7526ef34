package postgres

import (
	"context"
	"database/sql"
	"sort"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/banking-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/banking-ledger-service/internal/ledger"
	"github.com/sheikh-saqib/banking-ledger-service/internal/models"
)

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// PostgresLedgerStore is the durable implementation of
// interfaces.LedgerStore. Apply runs every balance update and journal
// insert of a mutation inside a single database transaction, so a crash
// between the two is never observable.
type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// InitSchema creates the accounts, transactions, and idempotency tables
// if they do not exist. Balances are NUMERIC, never floats, and the
// balance >= 0 check backs the insufficient-funds rule at the storage
// layer too.
func (p *PostgresLedgerStore) InitSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id         TEXT PRIMARY KEY,
		balance    NUMERIC(20,4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id           BIGSERIAL PRIMARY KEY,
		event_id     TEXT NOT NULL,
		account_id   TEXT NOT NULL REFERENCES accounts(id),
		kind         TEXT NOT NULL,
		amount       NUMERIC(20,4) NOT NULL CHECK (amount > 0),
		counterparty TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS transactions_account_idx
		ON transactions (account_id, created_at DESC, id);
	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key      TEXT PRIMARY KEY,
		event_id TEXT NOT NULL
	);`

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return ledger.StorageError("init schema", err)
	}
	return nil
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, accountID string) error {
	const query = `INSERT INTO accounts (id) VALUES ($1)`

	if _, err := p.db.ExecContext(ctx, query, accountID); err != nil {
		if pqCode(err) == pqUniqueViolation {
			return ledger.ErrAccountExists
		}
		return ledger.StorageError("create account", err)
	}
	return nil
}

func (p *PostgresLedgerStore) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	const query = `SELECT balance FROM accounts WHERE id = $1`

	var balance decimal.Decimal
	err := p.db.QueryRowContext(ctx, query, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, ledger.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, ledger.StorageError("get balance", err)
	}
	return balance, nil
}

// Apply commits the mutation inside one sql.Tx. Any failure rolls the
// whole unit back; the pre-call state is preserved.
func (p *PostgresLedgerStore) Apply(ctx context.Context, mut interfaces.Mutation) (interfaces.ApplyResult, error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return interfaces.ApplyResult{}, ledger.StorageError("begin", err)
	}
	defer dbTx.Rollback()

	if mut.IdempotencyKey != "" {
		const query = `INSERT INTO idempotency_keys (key, event_id) VALUES ($1, $2)`
		if _, err := dbTx.ExecContext(ctx, query, mut.IdempotencyKey, mut.EventID); err != nil {
			if pqCode(err) == pqUniqueViolation {
				return interfaces.ApplyResult{}, ledger.ErrDuplicate
			}
			return interfaces.ApplyResult{}, ledger.StorageError("record idempotency key", err)
		}
	}

	// the UPDATEs take row locks; walking the accounts in one fixed
	// order keeps two engine replicas sharing this database from
	// deadlocking on opposite transfers
	balances := make(map[string]decimal.Decimal, len(mut.Changes))
	for _, ch := range sortedChanges(mut.Changes) {
		const query = `UPDATE accounts SET balance = balance + $2 WHERE id = $1 RETURNING balance`

		var balance decimal.Decimal
		err := dbTx.QueryRowContext(ctx, query, ch.AccountID, ch.Delta).Scan(&balance)
		switch {
		case err == sql.ErrNoRows:
			return interfaces.ApplyResult{}, ledger.ErrNotFound
		case pqCode(err) == pqCheckViolation:
			return interfaces.ApplyResult{}, ledger.ErrInsufficientFunds
		case err != nil:
			return interfaces.ApplyResult{}, ledger.StorageError("adjust balance", err)
		}
		balances[ch.AccountID] = balance
	}

	out := make([]models.TransactionRecord, 0, len(mut.Records))
	for _, rec := range mut.Records {
		const query = `INSERT INTO transactions (event_id, account_id, kind, amount, counterparty)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING id, created_at`

		err := dbTx.QueryRowContext(ctx, query,
			rec.EventID, rec.AccountID, string(rec.Kind), rec.Amount, rec.Counterparty,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			return interfaces.ApplyResult{}, ledger.StorageError("append record", err)
		}
		out = append(out, rec)
	}

	if err := dbTx.Commit(); err != nil {
		return interfaces.ApplyResult{}, ledger.StorageError("commit", err)
	}
	return interfaces.ApplyResult{Records: out, Balances: balances}, nil
}

func (p *PostgresLedgerStore) EntriesByAccount(ctx context.Context, accountID string) ([]models.TransactionRecord, error) {
	var exists int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = $1`, accountID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, ledger.StorageError("lookup account", err)
	}

	const query = `SELECT id, event_id, account_id, kind, amount, COALESCE(counterparty, ''), created_at
	FROM transactions
	WHERE account_id = $1
	ORDER BY created_at DESC, id ASC`

	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, ledger.StorageError("list records", err)
	}
	defer rows.Close()

	var entries []models.TransactionRecord
	for rows.Next() {
		var rec models.TransactionRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.AccountID, &kind, &rec.Amount, &rec.Counterparty, &rec.CreatedAt); err != nil {
			return nil, ledger.StorageError("scan record", err)
		}
		rec.Kind = models.Kind(kind)
		entries = append(entries, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.StorageError("list records", err)
	}
	return entries, nil
}

// sortedChanges returns the balance changes ordered by account id,
// leaving the caller's slice alone.
func sortedChanges(changes []interfaces.BalanceChange) []interfaces.BalanceChange {
	out := append([]interfaces.BalanceChange(nil), changes...)
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// pqCode extracts the Postgres error code, if any.
func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
