package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection names under users/{ownerId}.
const (
	usersCollection        = "users"
	accountsCollection     = "accounts"
	transactionsCollection = "transactions"
	goalsCollection        = "savingsGoals"
	investmentsCollection  = "investments"
)

// FirestoreBackend is the ledger.Backend backed by Cloud Firestore. Each
// atomic unit is one Firestore transaction; retries are left to the
// ledger store so that it can re-plan from fresh reads.
type FirestoreBackend struct {
	client *firestore.Client
}

// NewFirestoreBackend creates a backend with its own client.
func NewFirestoreBackend(ctx context.Context, projectID, databaseID string) (*FirestoreBackend, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("NewFirestoreBackend: creating client: %w", err)
	}
	return &FirestoreBackend{client: client}, nil
}

// NewFirestoreBackendWithClient wraps an existing client.
func NewFirestoreBackendWithClient(client *firestore.Client) *FirestoreBackend {
	return &FirestoreBackend{client: client}
}

// Close closes the Firestore client connection.
func (b *FirestoreBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// RunAtomic implements ledger.Backend.
func (b *FirestoreBackend) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	err := b.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		return fn(ctx, &txn{client: b.client, tx: ftx})
	}, firestore.MaxAttempts(1))
	return mapError(err)
}

// mapError translates gRPC status codes into ledger sentinels. Errors that
// already carry a ledger meaning pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrValidation) || errors.Is(err, ledger.ErrReferenceNotFound) ||
		errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrStalePlan) ||
		errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrConflict) {
		return err
	}
	switch status.Code(err) {
	case codes.Aborted:
		return fmt.Errorf("firestore: %v: %w", err, ledger.ErrConflict)
	case codes.NotFound:
		return fmt.Errorf("firestore: %v: %w", err, ledger.ErrNotFound)
	}
	return fmt.Errorf("firestore: %w", err)
}

type txn struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func (t *txn) coll(ownerID, name string) *firestore.CollectionRef {
	return t.client.Collection(usersCollection).Doc(ownerID).Collection(name)
}

func (t *txn) doc(ownerID, name, id string) (*firestore.DocumentRef, error) {
	if ownerID == "" || id == "" {
		return nil, fmt.Errorf("firestore: %s document needs owner and id: %w", name, ledger.ErrNotFound)
	}
	return t.coll(ownerID, name).Doc(id), nil
}

func getDoc[D any, T any](t *txn, ownerID, name, id string, conv func(D) (T, error)) (T, error) {
	var zero T
	ref, err := t.doc(ownerID, name, id)
	if err != nil {
		return zero, err
	}
	snap, err := t.tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, fmt.Errorf("%s/%s: %w", name, id, ledger.ErrNotFound)
		}
		return zero, fmt.Errorf("getting %s/%s: %w", name, id, err)
	}
	var d D
	if err := snap.DataTo(&d); err != nil {
		return zero, fmt.Errorf("decoding %s/%s: %w", name, id, err)
	}
	return conv(d)
}

func queryDocs[D any, T any](t *txn, q firestore.Query, name string, conv func(D) (T, error)) ([]T, error) {
	it := t.tx.Documents(q)
	defer it.Stop()

	var out []T
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", name, err)
		}
		var d D
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", name, snap.Ref.ID, err)
		}
		v, err := conv(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *txn) GetAccount(_ context.Context, ownerID, id string) (domain.Account, error) {
	return getDoc(t, ownerID, accountsCollection, id, accountDoc.toDomain)
}

func (t *txn) GetTransaction(_ context.Context, ownerID, id string) (domain.Transaction, error) {
	return getDoc(t, ownerID, transactionsCollection, id, transactionDoc.toDomain)
}

func (t *txn) GetGoal(_ context.Context, ownerID, id string) (domain.SavingsGoal, error) {
	return getDoc(t, ownerID, goalsCollection, id, goalDoc.toDomain)
}

func (t *txn) GetInvestment(_ context.Context, ownerID, id string) (domain.Investment, error) {
	return getDoc(t, ownerID, investmentsCollection, id, investmentDoc.toDomain)
}

func (t *txn) ListAccounts(_ context.Context, ownerID string) ([]domain.Account, error) {
	q := t.coll(ownerID, accountsCollection).OrderBy("id", firestore.Asc)
	return queryDocs(t, q, accountsCollection, accountDoc.toDomain)
}

func (t *txn) ListTransactions(_ context.Context, ownerID, accountID string) ([]domain.Transaction, error) {
	q := t.coll(ownerID, transactionsCollection).Query
	if accountID != "" {
		q = q.Where("accountId", "==", accountID)
	}
	out, err := queryDocs(t, q, transactionsCollection, transactionDoc.toDomain)
	if err != nil {
		return nil, err
	}
	sortTransactions(out)
	return out, nil
}

func (t *txn) ListLinkedTransactions(_ context.Context, ownerID string, link domain.Link) ([]domain.Transaction, error) {
	q := t.coll(ownerID, transactionsCollection).
		Where("linkKind", "==", string(link.Kind)).
		Where("linkedRecordId", "==", link.RecordID)
	out, err := queryDocs(t, q, transactionsCollection, transactionDoc.toDomain)
	if err != nil {
		return nil, err
	}
	sortTransactions(out)
	return out, nil
}

func (t *txn) ListGoals(_ context.Context, ownerID string) ([]domain.SavingsGoal, error) {
	q := t.coll(ownerID, goalsCollection).OrderBy("id", firestore.Asc)
	return queryDocs(t, q, goalsCollection, goalDoc.toDomain)
}

func (t *txn) ListInvestments(_ context.Context, ownerID string) ([]domain.Investment, error) {
	q := t.coll(ownerID, investmentsCollection).OrderBy("id", firestore.Asc)
	return queryDocs(t, q, investmentsCollection, investmentDoc.toDomain)
}

func (t *txn) set(ownerID, name, id string, data any) error {
	ref, err := t.doc(ownerID, name, id)
	if err != nil {
		return err
	}
	if err := t.tx.Set(ref, data); err != nil {
		return fmt.Errorf("writing %s/%s: %w", name, id, err)
	}
	return nil
}

func (t *txn) delete(ownerID, name, id string) error {
	ref, err := t.doc(ownerID, name, id)
	if err != nil {
		return err
	}
	if err := t.tx.Delete(ref); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", name, id, err)
	}
	return nil
}

func (t *txn) PutAccount(_ context.Context, a domain.Account) error {
	return t.set(a.OwnerID, accountsCollection, a.ID, fromAccount(a))
}

func (t *txn) PutTransaction(_ context.Context, tr domain.Transaction) error {
	return t.set(tr.OwnerID, transactionsCollection, tr.ID, fromTransaction(tr))
}

func (t *txn) PutGoal(_ context.Context, g domain.SavingsGoal) error {
	return t.set(g.OwnerID, goalsCollection, g.ID, fromGoal(g))
}

func (t *txn) PutInvestment(_ context.Context, inv domain.Investment) error {
	return t.set(inv.OwnerID, investmentsCollection, inv.ID, fromInvestment(inv))
}

func (t *txn) DeleteTransaction(_ context.Context, ownerID, id string) error {
	return t.delete(ownerID, transactionsCollection, id)
}

func (t *txn) DeleteGoal(_ context.Context, ownerID, id string) error {
	return t.delete(ownerID, goalsCollection, id)
}

func (t *txn) DeleteInvestment(_ context.Context, ownerID, id string) error {
	return t.delete(ownerID, investmentsCollection, id)
}

func sortTransactions(ts []domain.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].OccurredAt.Equal(ts[j].OccurredAt) {
			return ts[i].OccurredAt.Before(ts[j].OccurredAt)
		}
		return ts[i].ID < ts[j].ID
	})
}

// Ensure FirestoreBackend implements ledger.Backend.
var _ ledger.Backend = (*FirestoreBackend)(nil)
