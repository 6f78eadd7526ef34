package ledger

import "errors"

var (
	// ErrInvalidAmount means the amount was zero, negative, or malformed.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidAccount means the account identity was empty.
	ErrInvalidAccount = errors.New("account id must not be empty")
	// ErrNotFound means the account or counterparty does not exist.
	ErrNotFound = errors.New("account not found")
	// ErrAccountExists means the account identity is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrInsufficientFunds means the debit would drive the balance
	// negative; nothing was mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicate means the idempotency key was seen before; the
	// original commit stands and no new mutation occurred.
	ErrDuplicate = errors.New("duplicate transaction")
	// ErrTimeout means an account lock could not be acquired within the
	// configured bound; nothing was mutated and the call is safe to retry.
	ErrTimeout = errors.New("timed out waiting for account lock")
	// ErrStorage wraps an underlying durability failure. Fatal to the
	// operation; the pre-call state is preserved.
	ErrStorage = errors.New("storage failure")
)

type storageError struct {
	msg   string
	cause error
}

func (e *storageError) Error() string { return e.msg + ": " + e.cause.Error() }

func (e *storageError) Unwrap() error { return e.cause }

func (e *storageError) Is(target error) bool { return target == ErrStorage }

// StorageError tags a driver failure as ErrStorage without hiding it:
// errors.Is(err, ErrStorage) holds, and errors.As still reaches the
// underlying cause (a *pq.Error, for instance).
func StorageError(msg string, cause error) error {
	return &storageError{msg: msg, cause: cause}
}
