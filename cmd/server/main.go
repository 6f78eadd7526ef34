package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sheikh-saqib/banking-ledger-service/internal/config"
	"github.com/sheikh-saqib/banking-ledger-service/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/banking-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/banking-ledger-service/internal/ledger"
	"github.com/sheikh-saqib/banking-ledger-service/internal/storage/memory"
	"github.com/sheikh-saqib/banking-ledger-service/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	log := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	var store interfaces.LedgerStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to open database")
		}
		pg := postgres.NewPostgresLedgerStore(db)
		if err := pg.InitSchema(context.Background()); err != nil {
			log.WithError(err).Fatal("failed to initialize schema")
		}
		store = pg
		log.Info("using postgres store")
	} else {
		store = memory.NewMemoryLedgerStore()
		log.Info("no DATABASE_URL set, using in-memory store")
	}

	opts := []ledger.Option{
		ledger.WithLockWait(cfg.LockWait),
		ledger.WithLogger(log),
	}
	if len(cfg.KafkaBrokers) > 0 {
		opts = append(opts, ledger.WithPublisher(kafka.NewPublisher(cfg.KafkaBrokers)))
		log.WithField("brokers", cfg.KafkaBrokers).Info("publishing transaction events")
	}
	engine := ledger.NewLedger(store, opts...)

	log.WithField("addr", cfg.HTTPAddr).Info("starting server")
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, newRouter(engine, log)))
}

// newRouter wires the HTTP surface. This layer stays thin: it decodes
// requests, calls one engine operation, and maps typed failures to
// status codes. Identity resolution and authentication live outside
// this service.
func newRouter(engine *ledger.Ledger, log logrus.FieldLogger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			AccountID string `json:"account_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := engine.OpenAccount(r.Context(), req.AccountID); err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"account created"}`))
	})

	mux.HandleFunc("/deposit", func(w http.ResponseWriter, r *http.Request) {
		handleMovement(w, r, log, func(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
			return engine.Deposit(ctx, accountID, amount)
		})
	})

	mux.HandleFunc("/withdraw", func(w http.ResponseWriter, r *http.Request) {
		handleMovement(w, r, log, func(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
			return engine.Withdraw(ctx, accountID, amount)
		})
	})

	mux.HandleFunc("/transfer", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		idempotencyKey := r.Header.Get("Idempotency-Key")

		var req struct {
			FromAccount string          `json:"from_account"`
			ToAccount   string          `json:"to_account"`
			Amount      decimal.Decimal `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		balance, err := engine.Transfer(r.Context(), req.FromAccount, req.ToAccount, req.Amount, idempotencyKey)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			AccountID string          `json:"account_id"`
			Balance   decimal.Decimal `json:"balance"`
		}{req.FromAccount, balance})
	})

	mux.HandleFunc("/accounts/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		accountID := r.URL.Query().Get("account_id")
		if accountID == "" {
			http.Error(w, "account_id is a mandatory field", http.StatusBadRequest)
			return
		}

		balance, err := engine.Balance(r.Context(), accountID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			AccountID string          `json:"account_id"`
			Balance   decimal.Decimal `json:"balance"`
		}{accountID, balance})
	})

	mux.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		accountID := r.URL.Query().Get("account_id")
		if accountID == "" {
			http.Error(w, "account_id is a mandatory field", http.StatusBadRequest)
			return
		}

		records, err := engine.History(r.Context(), accountID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	})

	return mux
}

// handleMovement serves deposit and withdraw, which share a request and
// response shape.
func handleMovement(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger,
	op func(context.Context, string, decimal.Decimal) (decimal.Decimal, error),
) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AccountID string          `json:"account_id"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	balance, err := op(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		AccountID string          `json:"account_id"`
		Balance   decimal.Decimal `json:"balance"`
	}{req.AccountID, balance})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's typed failures onto HTTP status codes.
// Storage failures are logged here; the client only sees a generic 500.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAccount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrAccountExists), errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrTimeout):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.WithError(err).Error("operation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
