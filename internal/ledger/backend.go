package ledger

import (
	"context"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// Reader exposes the document reads available inside an atomic unit.
// Getters return an error matching ErrNotFound for missing documents.
type Reader interface {
	GetAccount(ctx context.Context, ownerID, id string) (domain.Account, error)
	GetTransaction(ctx context.Context, ownerID, id string) (domain.Transaction, error)
	GetGoal(ctx context.Context, ownerID, id string) (domain.SavingsGoal, error)
	GetInvestment(ctx context.Context, ownerID, id string) (domain.Investment, error)

	ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error)
	// ListTransactions lists the owner's transactions, restricted to one
	// account unless accountID is empty.
	ListTransactions(ctx context.Context, ownerID, accountID string) ([]domain.Transaction, error)
	ListLinkedTransactions(ctx context.Context, ownerID string, link domain.Link) ([]domain.Transaction, error)
	ListGoals(ctx context.Context, ownerID string) ([]domain.SavingsGoal, error)
	ListInvestments(ctx context.Context, ownerID string) ([]domain.Investment, error)
}

// Tx is a Reader that can also buffer writes. Writes become visible to
// other units only when the unit commits, and all of them or none do.
// Backends that require reads before writes (Firestore) rely on the
// ledger issuing every read first.
type Tx interface {
	Reader

	PutAccount(ctx context.Context, a domain.Account) error
	PutTransaction(ctx context.Context, t domain.Transaction) error
	PutGoal(ctx context.Context, g domain.SavingsGoal) error
	PutInvestment(ctx context.Context, inv domain.Investment) error

	DeleteTransaction(ctx context.Context, ownerID, id string) error
	DeleteGoal(ctx context.Context, ownerID, id string) error
	DeleteInvestment(ctx context.Context, ownerID, id string) error
}

// Backend is the persistent document store. RunAtomic runs fn once as a
// single unit: if fn returns an error nothing is written and that error is
// returned unchanged; if another unit committed a conflicting write first
// the result matches ErrConflict. A backend may also report ErrConflict
// instead of fn's error when fn ran against reads that were invalidated.
type Backend interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
