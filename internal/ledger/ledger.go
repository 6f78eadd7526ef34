package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sheikh-saqib/banking-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/banking-ledger-service/internal/models"
	"github.com/sheikh-saqib/banking-ledger-service/internal/models/events"
)

// DefaultLockWait bounds how long an operation waits for a contended
// account lock before failing with ErrTimeout.
const DefaultLockWait = 5 * time.Second

// Ledger moves money between accounts. Every operation runs its
// read-check-write sequence under per-account locks and commits its
// balance changes and journal records as one store Mutation, so no
// failure or crash can leave a partial debit or an orphan record.
type Ledger struct {
	store     interfaces.LedgerStore
	publisher interfaces.EventPublisher // optional, post-commit only
	log       logrus.FieldLogger
	lockWait  time.Duration

	locks map[string]chan struct{} // one slot per account, held while a mutation is in flight
	mapMu sync.Mutex               // protects the locks map itself
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher wires an event publisher that receives a
// TransactionRecorded event after each committed operation.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithLockWait overrides the bound on waiting for a contended account lock.
func WithLockWait(d time.Duration) Option {
	return func(l *Ledger) { l.lockWait = d }
}

// WithLogger overrides the logger used for post-commit publish failures.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

// NewLedger creates a ledger engine on top of the given store.
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		log:      logrus.StandardLogger(),
		lockWait: DefaultLockWait,
		locks:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) accountLock(accountID string) chan struct{} {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	ch, ok := l.locks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[accountID] = ch
	}
	return ch
}

// acquire takes the locks for the given accounts in lexicographic order,
// never in caller order, so two transfers moving money in opposite
// directions between the same pair cannot deadlock. The whole acquisition
// shares one wait bound; on timeout or cancellation every lock taken so
// far is released and nothing has been mutated.
func (l *Ledger) acquire(ctx context.Context, accountIDs ...string) (func(), error) {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)
	// a self-transfer names the same account twice; lock it once
	ids = dedupe(ids)

	timer := time.NewTimer(l.lockWait)
	defer timer.Stop()

	held := make([]chan struct{}, 0, len(ids))
	release := func() {
		for _, ch := range held {
			<-ch
		}
	}
	for _, id := range ids {
		ch := l.accountLock(id)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timer.C:
			release()
			return nil, ErrTimeout
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	// a cancellation that raced the last lock grant still wins: the
	// caller must not reach the commit path
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, id := range sorted {
		if i == 0 || id != sorted[i-1] {
			out = append(out, id)
		}
	}
	return out
}

// OpenAccount registers a new account with a zero balance. Account
// identity comes from the caller (assigned at registration); the ledger
// never sees credentials.
func (l *Ledger) OpenAccount(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrInvalidAccount
	}
	return l.store.CreateAccount(ctx, accountID)
}

// Deposit credits amount to the account and journals a deposit record.
// Returns the new balance.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if accountID == "" {
		return decimal.Zero, ErrInvalidAccount
	}
	if amount.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	release, err := l.acquire(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	defer release()

	eventID := uuid.New().String()
	mut := interfaces.Mutation{
		EventID: eventID,
		Changes: []interfaces.BalanceChange{{AccountID: accountID, Delta: amount}},
		Records: []models.TransactionRecord{{
			EventID:   eventID,
			AccountID: accountID,
			Kind:      models.KindDeposit,
			Amount:    amount,
		}},
	}
	res, err := l.store.Apply(ctx, mut)
	if err != nil {
		return decimal.Zero, err
	}
	l.publish(ctx, res.Records[0], "")

	return res.Balances[accountID], nil
}

// Withdraw debits amount from the account and journals a withdraw record.
// Fails with ErrInsufficientFunds, and mutates nothing, when the balance
// would go negative. Returns the new balance.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if accountID == "" {
		return decimal.Zero, ErrInvalidAccount
	}
	if amount.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	release, err := l.acquire(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	defer release()

	eventID := uuid.New().String()
	mut := interfaces.Mutation{
		EventID: eventID,
		Changes: []interfaces.BalanceChange{{AccountID: accountID, Delta: amount.Neg()}},
		Records: []models.TransactionRecord{{
			EventID:   eventID,
			AccountID: accountID,
			Kind:      models.KindWithdraw,
			Amount:    amount,
		}},
	}
	res, err := l.store.Apply(ctx, mut)
	if err != nil {
		return decimal.Zero, err
	}
	l.publish(ctx, res.Records[0], "")

	return res.Balances[accountID], nil
}

// Transfer debits the source and credits the destination as one atomic
// unit, journaling a transfer_out/transfer_in pair that cross-reference
// each other. Either both balance changes and both records land, or none
// do. An optional idempotency key makes retried transfers safe: a
// replayed key returns the source's current balance without re-applying.
// Returns the source's new balance.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, idempotencyKey string) (decimal.Decimal, error) {
	if fromID == "" || toID == "" {
		return decimal.Zero, ErrInvalidAccount
	}
	if amount.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	release, err := l.acquire(ctx, fromID, toID)
	if err != nil {
		return decimal.Zero, err
	}
	defer release()

	eventID := uuid.New().String()
	mut := interfaces.Mutation{
		EventID:        eventID,
		IdempotencyKey: idempotencyKey,
		Changes: []interfaces.BalanceChange{
			{AccountID: fromID, Delta: amount.Neg()},
			{AccountID: toID, Delta: amount},
		},
		Records: []models.TransactionRecord{
			{
				EventID:      eventID,
				AccountID:    fromID,
				Kind:         models.KindTransferOut,
				Amount:       amount,
				Counterparty: toID,
			},
			{
				EventID:      eventID,
				AccountID:    toID,
				Kind:         models.KindTransferIn,
				Amount:       amount,
				Counterparty: fromID,
			},
		},
	}
	res, err := l.store.Apply(ctx, mut)
	switch {
	case err == nil:
		l.publish(ctx, res.Records[0], idempotencyKey)
		return res.Balances[fromID], nil
	case errors.Is(err, ErrDuplicate):
		// the original commit stands and this call applied nothing, so
		// a fresh read under the held lock reports its outcome
		return l.store.GetBalance(ctx, fromID)
	default:
		return decimal.Zero, err
	}
}

// Balance returns the account's committed balance. Read-only.
func (l *Ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if accountID == "" {
		return decimal.Zero, ErrInvalidAccount
	}
	return l.store.GetBalance(ctx, accountID)
}

// History returns the account's committed journal records, newest first.
// Read-only.
func (l *Ledger) History(ctx context.Context, accountID string) ([]models.TransactionRecord, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	return l.store.EntriesByAccount(ctx, accountID)
}

// publish emits a post-commit event. Publishing is best effort: a failure
// here is logged and never unwinds the committed operation.
func (l *Ledger) publish(ctx context.Context, rec models.TransactionRecord, idempotencyKey string) {
	if l.publisher == nil {
		return
	}
	ev := events.TransactionRecorded{
		EventID:        rec.EventID,
		Kind:           string(rec.Kind),
		AccountID:      rec.AccountID,
		Counterparty:   rec.Counterparty,
		Amount:         rec.Amount,
		IdempotencyKey: idempotencyKey,
		OccurredAt:     rec.CreatedAt,
	}
	if err := l.publisher.Publish(ctx, ev); err != nil {
		l.log.WithError(err).WithField("event_id", rec.EventID).
			Warn("failed to publish transaction event")
	}
}
