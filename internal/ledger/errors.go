package ledger

import (
	"errors"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrReferenceNotFound means an account, goal, investment or transaction
	// referenced by an intent no longer exists. The caller should refresh
	// and try again.
	ErrReferenceNotFound = errors.New("referenced record not found")

	// ErrInsufficientFunds means a non-credit account cannot cover an outflow.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAborted is matched by every *AbortedError.
	ErrAborted = errors.New("ledger mutation aborted")

	// ErrDriftDetected is reported when a cached balance disagrees with its
	// transaction history. It is never repaired implicitly.
	ErrDriftDetected = errors.New("balance drift detected")

	// ErrConflict is returned by a Backend when a concurrent commit touched a
	// document read by the current unit. Store retries on it.
	ErrConflict = errors.New("concurrent modification")

	// ErrNotFound is returned by Tx getters for missing documents.
	ErrNotFound = errors.New("document not found")

	// ErrStalePlan means a document changed after the plan was computed
	// from it. Store.Mutate re-plans; ApplyAtomic aborts.
	ErrStalePlan = errors.New("plan computed from a stale snapshot")
)

// ValidationError describes a bad input field. No storage access happens
// before it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AbortedError reports an atomic unit that did not commit. State is
// unchanged from before the call.
type AbortedError struct {
	Reason   string
	Attempts int
	Err      error
}

func (e *AbortedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger mutation aborted after %d attempt(s): %s: %v", e.Attempts, e.Reason, e.Err)
	}
	return fmt.Sprintf("ledger mutation aborted after %d attempt(s): %s", e.Attempts, e.Reason)
}

func (e *AbortedError) Unwrap() error { return e.Err }

func (e *AbortedError) Is(target error) bool { return target == ErrAborted }

// notFound converts a backend ErrNotFound into ErrReferenceNotFound while
// keeping other errors as they are.
func notFound(kind, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %q: %w", kind, id, ErrReferenceNotFound)
	}
	return err
}

func insufficient(a domain.Account, amount decimal.Decimal) error {
	return fmt.Errorf("account %q holds %s, needs %s: %w", a.ID, a.Balance, amount, ErrInsufficientFunds)
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUserError reports whether err was caused by the request rather than
// the store: validation, missing references and insufficient funds.
func IsUserError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrReferenceNotFound) ||
		errors.Is(err, ErrInsufficientFunds)
}
