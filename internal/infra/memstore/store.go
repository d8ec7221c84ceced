package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

type collection string

const (
	accounts     collection = "accounts"
	transactions collection = "transactions"
	goals        collection = "savingsGoals"
	investments  collection = "investments"
)

type docKey struct {
	coll  collection
	owner string
	id    string
}

type collKey struct {
	coll  collection
	owner string
}

// doc is a stored document. A deleted document keeps its revision as a
// tombstone so that a unit which read it before the delete conflicts.
type doc struct {
	val     any
	rev     uint64
	deleted bool
}

// Op describes one write during commit. It is passed to the fault hook.
type Op struct {
	Index  int
	Coll   string
	ID     string
	Delete bool
}

// FaultFunc is called before each write is staged during commit. A
// non-nil error aborts the commit; nothing staged so far becomes visible.
type FaultFunc func(op Op) error

// Store is an in-memory ledger.Backend with optimistic concurrency.
// Each unit records the revision of every document and collection it
// read and buffers its writes; commit validates those revisions under the
// lock and fails with ledger.ErrConflict if any changed.
// Data is lost on restart. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	docs    map[docKey]doc
	colls   map[collKey]uint64
	rev     uint64
	commits int
	fault   FaultFunc
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		docs:  make(map[docKey]doc),
		colls: make(map[collKey]uint64),
	}
}

// SetFault installs (or, with nil, removes) the commit fault hook.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Revision returns the revision of the last successful commit.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Commits returns the number of units that committed writes.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// RunAtomic implements ledger.Backend.
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	t := &tx{
		store:    s,
		docReads: make(map[docKey]uint64),
		colReads: make(map[collKey]uint64),
	}
	if err := fn(ctx, t); err != nil {
		// An error computed from an inconsistent view is a conflict, not
		// the caller's fault.
		if s.stale(t) {
			return fmt.Errorf("memstore: read set changed during failed unit: %w", ledger.ErrConflict)
		}
		return err
	}
	return s.commit(t)
}

func (s *Store) stale(t *tx) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staleLocked(t)
}

func (s *Store) staleLocked(t *tx) bool {
	for k, rev := range t.docReads {
		if s.docs[k].rev != rev {
			return true
		}
	}
	for k, rev := range t.colReads {
		if s.colls[k] != rev {
			return true
		}
	}
	return false
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staleLocked(t) {
		return fmt.Errorf("memstore: commit: %w", ledger.ErrConflict)
	}
	if len(t.writes) == 0 {
		return nil
	}

	// Stage every write first so that a failure leaves the store untouched.
	rev := s.rev + 1
	staged := make(map[docKey]doc, len(t.writes))
	for i, w := range t.writes {
		if s.fault != nil {
			op := Op{Index: i, Coll: string(w.key.coll), ID: w.key.id, Delete: w.delete}
			if err := s.fault(op); err != nil {
				return fmt.Errorf("memstore: commit aborted at write %d: %w", i, err)
			}
		}
		staged[w.key] = doc{val: w.val, rev: rev, deleted: w.delete}
	}

	for k, d := range staged {
		s.docs[k] = d
		s.colls[collKey{coll: k.coll, owner: k.owner}] = rev
	}
	s.rev = rev
	s.commits++
	return nil
}

type write struct {
	key    docKey
	val    any
	delete bool
}

// tx is one unit. Reads see committed state only.
type tx struct {
	store    *Store
	docReads map[docKey]uint64
	colReads map[collKey]uint64
	writes   []write
}

func get[T any](t *tx, coll collection, owner, id string) (T, error) {
	var zero T
	k := docKey{coll: coll, owner: owner, id: id}

	t.store.mu.RLock()
	d, ok := t.store.docs[k]
	t.store.mu.RUnlock()

	if _, seen := t.docReads[k]; !seen {
		t.docReads[k] = d.rev
	}
	if !ok || d.deleted {
		return zero, fmt.Errorf("%s/%s: %w", coll, id, ledger.ErrNotFound)
	}
	return d.val.(T), nil
}

func list[T any](t *tx, coll collection, owner string, keep func(T) bool) []T {
	ck := collKey{coll: coll, owner: owner}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if _, seen := t.colReads[ck]; !seen {
		t.colReads[ck] = t.store.colls[ck]
	}
	var out []T
	for k, d := range t.store.docs {
		if k.coll != coll || k.owner != owner || d.deleted {
			continue
		}
		v := d.val.(T)
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (t *tx) put(coll collection, owner, id string, v any) error {
	if owner == "" || id == "" {
		return fmt.Errorf("memstore: %s write needs owner and id", coll)
	}
	t.writes = append(t.writes, write{key: docKey{coll: coll, owner: owner, id: id}, val: v})
	return nil
}

func (t *tx) del(coll collection, owner, id string) error {
	t.writes = append(t.writes, write{key: docKey{coll: coll, owner: owner, id: id}, delete: true})
	return nil
}

func (t *tx) GetAccount(_ context.Context, ownerID, id string) (domain.Account, error) {
	return get[domain.Account](t, accounts, ownerID, id)
}

func (t *tx) GetTransaction(_ context.Context, ownerID, id string) (domain.Transaction, error) {
	return get[domain.Transaction](t, transactions, ownerID, id)
}

func (t *tx) GetGoal(_ context.Context, ownerID, id string) (domain.SavingsGoal, error) {
	return get[domain.SavingsGoal](t, goals, ownerID, id)
}

func (t *tx) GetInvestment(_ context.Context, ownerID, id string) (domain.Investment, error) {
	return get[domain.Investment](t, investments, ownerID, id)
}

func (t *tx) ListAccounts(_ context.Context, ownerID string) ([]domain.Account, error) {
	out := list[domain.Account](t, accounts, ownerID, nil)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) ListTransactions(_ context.Context, ownerID, accountID string) ([]domain.Transaction, error) {
	out := list(t, transactions, ownerID, func(tr domain.Transaction) bool {
		return accountID == "" || tr.AccountID == accountID
	})
	sortTransactions(out)
	return out, nil
}

func (t *tx) ListLinkedTransactions(_ context.Context, ownerID string, link domain.Link) ([]domain.Transaction, error) {
	out := list(t, transactions, ownerID, func(tr domain.Transaction) bool {
		return tr.Link == link
	})
	sortTransactions(out)
	return out, nil
}

func (t *tx) ListGoals(_ context.Context, ownerID string) ([]domain.SavingsGoal, error) {
	out := list[domain.SavingsGoal](t, goals, ownerID, nil)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) ListInvestments(_ context.Context, ownerID string) ([]domain.Investment, error) {
	out := list[domain.Investment](t, investments, ownerID, nil)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) PutAccount(_ context.Context, a domain.Account) error {
	return t.put(accounts, a.OwnerID, a.ID, a)
}

func (t *tx) PutTransaction(_ context.Context, tr domain.Transaction) error {
	return t.put(transactions, tr.OwnerID, tr.ID, tr)
}

func (t *tx) PutGoal(_ context.Context, g domain.SavingsGoal) error {
	return t.put(goals, g.OwnerID, g.ID, g)
}

func (t *tx) PutInvestment(_ context.Context, inv domain.Investment) error {
	return t.put(investments, inv.OwnerID, inv.ID, inv)
}

func (t *tx) DeleteTransaction(_ context.Context, ownerID, id string) error {
	return t.del(transactions, ownerID, id)
}

func (t *tx) DeleteGoal(_ context.Context, ownerID, id string) error {
	return t.del(goals, ownerID, id)
}

func (t *tx) DeleteInvestment(_ context.Context, ownerID, id string) error {
	return t.del(investments, ownerID, id)
}

func sortTransactions(ts []domain.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].OccurredAt.Equal(ts[j].OccurredAt) {
			return ts[i].OccurredAt.Before(ts[j].OccurredAt)
		}
		return ts[i].ID < ts[j].ID
	})
}

// Ensure Store implements ledger.Backend.
var _ ledger.Backend = (*Store)(nil)
