/*
store.go - Persistence contract for arrear records

PURPOSE:
  Defines the interface between the ledger and the database: read, create,
  update-with-optimistic-lock, and filtered listing. The ledger owns all
  business rules; stores only guarantee durability and the version check.

OPTIMISTIC LOCKING:
  Update compares the record's Version against the stored one. On a match
  the store persists the record with Version+1; on a mismatch it returns
  ErrVersionConflict and changes nothing. Two concurrent settlements of the
  same arrear can therefore never both apply against the same balance read.

FILTERING IS A PROJECTION:
  List filters over the same source-of-truth records settlement mutates.
  There is no cached copy that can drift.

IMPLEMENTATIONS:
  - store/memory:   in-memory, for tests and dev
  - store/sqlite:   embedded production profile
  - store/postgres: server production profile (pgx)

SEE ALSO:
  - ledger.go: the only caller that mutates through this interface
*/
package arrears

import (
	"context"

	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// Filter narrows a List call. Nil/empty fields match everything.
type Filter struct {
	EmployeeID *core.EmployeeID
	Department *string
	Statuses   []Status

	// Covering selects arrears whose period contains this month.
	Covering *core.Month
}

// Matches applies the filter in-process. Store implementations may push
// parts of it into queries but must agree with this definition.
func (f Filter) Matches(r *ArrearRecord) bool {
	if f.EmployeeID != nil && r.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.Department != nil && r.Department != *f.Department {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Covering != nil && !r.Period.Contains(*f.Covering) {
		return false
	}
	return true
}

// Store persists arrear records.
type Store interface {
	// Create inserts a new record. Fails with ErrDuplicateID if the ID is
	// taken.
	Create(ctx context.Context, rec ArrearRecord) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id core.ArrearID) (ArrearRecord, error)

	// Update persists rec if rec.Version still matches the stored version,
	// then increments it. Returns ErrVersionConflict on a lost race and
	// ErrNotFound for unknown IDs. The settlement history may only grow.
	Update(ctx context.Context, rec ArrearRecord) error

	// List returns records matching the filter. Read-only projection over
	// the same records Update mutates.
	List(ctx context.Context, f Filter) ([]ArrearRecord, error)
}

// TxStore extends Store with multi-record atomicity. Split needs it: the
// parent update and the child inserts must land together or not at all.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view. If fn returns an
	// error the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
