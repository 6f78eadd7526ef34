package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/banking-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/banking-ledger-service/internal/ledger"
	"github.com/sheikh-saqib/banking-ledger-service/internal/models"
)

func amt(i int64) decimal.Decimal { return decimal.NewFromInt(i) }

func seed(t *testing.T, balances map[string]int64) *MemoryLedgerStore {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryLedgerStore()
	for id, bal := range balances {
		if err := store.CreateAccount(ctx, id); err != nil {
			t.Fatal(err)
		}
		if bal == 0 {
			continue
		}
		_, err := store.Apply(ctx, interfaces.Mutation{
			EventID: "seed-" + id,
			Changes: []interfaces.BalanceChange{{AccountID: id, Delta: amt(bal)}},
			Records: []models.TransactionRecord{{
				EventID: "seed-" + id, AccountID: id, Kind: models.KindDeposit, Amount: amt(bal),
			}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLedgerStore()

	if err := store.CreateAccount(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateAccount(ctx, "alice"); !errors.Is(err, ledger.ErrAccountExists) {
		t.Fatalf("err=%v want ErrAccountExists", err)
	}

	balance, err := store.GetBalance(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(decimal.Zero) {
		t.Fatalf("new account balance=%s want 0", balance)
	}

	if _, err := store.GetBalance(ctx, "ghost"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestApplyRejectsWholeMutation(t *testing.T) {
	ctx := context.Background()
	store := seed(t, map[string]int64{"alice": 100, "bob": 0})

	// second change would drive bob negative; alice must stay untouched
	_, err := store.Apply(ctx, interfaces.Mutation{
		EventID: "ev-1",
		Changes: []interfaces.BalanceChange{
			{AccountID: "alice", Delta: amt(10)},
			{AccountID: "bob", Delta: amt(-10)},
		},
		Records: []models.TransactionRecord{
			{EventID: "ev-1", AccountID: "alice", Kind: models.KindTransferIn, Amount: amt(10), Counterparty: "bob"},
			{EventID: "ev-1", AccountID: "bob", Kind: models.KindTransferOut, Amount: amt(10), Counterparty: "alice"},
		},
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err=%v want ErrInsufficientFunds", err)
	}

	aliceBalance, _ := store.GetBalance(ctx, "alice")
	if !aliceBalance.Equal(amt(100)) {
		t.Fatalf("partial commit: alice=%s", aliceBalance)
	}
	recs, _ := store.EntriesByAccount(ctx, "alice")
	if len(recs) != 1 {
		t.Fatalf("orphan record: %d entries", len(recs))
	}
}

func TestApplyUnknownAccount(t *testing.T) {
	ctx := context.Background()
	store := seed(t, map[string]int64{"alice": 100})

	_, err := store.Apply(ctx, interfaces.Mutation{
		EventID: "ev-1",
		Changes: []interfaces.BalanceChange{
			{AccountID: "alice", Delta: amt(-10)},
			{AccountID: "ghost", Delta: amt(10)},
		},
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}

	balance, _ := store.GetBalance(ctx, "alice")
	if !balance.Equal(amt(100)) {
		t.Fatalf("partial commit: alice=%s", balance)
	}
}

func TestApplyAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	store := seed(t, map[string]int64{"alice": 0})

	var lastID int64
	for i := 0; i < 5; i++ {
		res, err := store.Apply(ctx, interfaces.Mutation{
			EventID: "ev",
			Changes: []interfaces.BalanceChange{{AccountID: "alice", Delta: amt(1)}},
			Records: []models.TransactionRecord{{EventID: "ev", AccountID: "alice", Kind: models.KindDeposit, Amount: amt(1)}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Records[0].ID <= lastID {
			t.Fatalf("id %d not greater than %d", res.Records[0].ID, lastID)
		}
		lastID = res.Records[0].ID
		if !res.Balances["alice"].Equal(amt(int64(i + 1))) {
			t.Fatalf("post-commit balance=%s want %d", res.Balances["alice"], i+1)
		}
	}
}

func TestApplyDuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := seed(t, map[string]int64{"alice": 100})

	mut := interfaces.Mutation{
		EventID:        "ev-1",
		IdempotencyKey: "key-1",
		Changes:        []interfaces.BalanceChange{{AccountID: "alice", Delta: amt(-10)}},
		Records:        []models.TransactionRecord{{EventID: "ev-1", AccountID: "alice", Kind: models.KindWithdraw, Amount: amt(10)}},
	}
	if _, err := store.Apply(ctx, mut); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Apply(ctx, mut); !errors.Is(err, ledger.ErrDuplicate) {
		t.Fatalf("err=%v want ErrDuplicate", err)
	}

	balance, _ := store.GetBalance(ctx, "alice")
	if !balance.Equal(amt(90)) {
		t.Fatalf("replay applied: balance=%s", balance)
	}
}

func TestEntriesByAccountOrdering(t *testing.T) {
	ctx := context.Background()
	store := seed(t, map[string]int64{"alice": 0, "bob": 0})

	for i := 0; i < 3; i++ {
		_, err := store.Apply(ctx, interfaces.Mutation{
			EventID: "ev",
			Changes: []interfaces.BalanceChange{{AccountID: "alice", Delta: amt(1)}},
			Records: []models.TransactionRecord{{EventID: "ev", AccountID: "alice", Kind: models.KindDeposit, Amount: amt(1)}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	recs, err := store.EntriesByAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("entries=%d want 3", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].CreatedAt.After(recs[i-1].CreatedAt) {
			t.Fatal("entries not newest first")
		}
		if recs[i].CreatedAt.Equal(recs[i-1].CreatedAt) && recs[i].ID < recs[i-1].ID {
			t.Fatal("timestamp ties not in ascending id order")
		}
	}

	// bob has no entries but exists
	bobRecs, err := store.EntriesByAccount(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(bobRecs) != 0 {
		t.Fatalf("entries=%d want 0", len(bobRecs))
	}

	if _, err := store.EntriesByAccount(ctx, "ghost"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}
