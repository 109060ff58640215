/*
ledger.go - The arrears settlement/split state machine

PURPOSE:
  All mutations of arrear records go through the Ledger. It enforces the
  state machine, the balance invariants, and the concurrency discipline.

STATE MACHINE:
  pending -> approved | rejected
  approved/partially_settled -> settle -> partially_settled | fully_settled
  approved/partially_settled -> split  -> split (terminal, spawns children)

CONCURRENCY DISCIPLINE:
  Two layers, both per-record:
  1. A per-arrear mutex serializes settle/split within this process, so the
     common case never burns a store round-trip on a doomed write.
  2. The store's optimistic version check catches racing writers in OTHER
     processes; the ledger retries a bounded number of times on
     ErrVersionConflict.
  Operations on different arrears share nothing and run fully in parallel.

FAILED WRITES ARE NO-OPS:
  The ledger mutates a Clone of the loaded record and only returns it after
  the store accepted the write. No partial in-memory state survives a
  failed persistence call.

IDEMPOTENCY:
  Settle is idempotent per payroll run reference: reapplying a reference
  already present in the record's history returns the current record
  unchanged instead of double-counting.

SEE ALSO:
  - types.go: record shape and invariants
  - store.go: persistence contract
*/
package arrears

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// versionRetries bounds optimistic-lock retries for out-of-process races.
const versionRetries = 3

// Ledger owns the arrear lifecycle. Safe for concurrent use.
type Ledger struct {
	store Store
	locks sync.Map // core.ArrearID -> *sync.Mutex

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time
}

// NewLedger creates a ledger over the given store. If the store also
// implements TxStore, Split becomes available.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

func (l *Ledger) lockFor(id core.ArrearID) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// =============================================================================
// CREATION
// =============================================================================

// NewArrear is the creation input.
type NewArrear struct {
	EmployeeID  core.EmployeeID
	Department  string
	Period      core.MonthRange
	TotalAmount decimal.Decimal
	Reason      string

	// MonthlyAmount, when set, must reconcile with TotalAmount over the
	// period (monthly x months, within a cent). Legacy uploads carry both
	// figures and they have been known to disagree.
	MonthlyAmount *decimal.Decimal
}

var centTolerance = core.MustDecimal("0.01")

// Create records a new arrear in pending status.
func (l *Ledger) Create(ctx context.Context, actor core.Actor, in NewArrear) (ArrearRecord, error) {
	if !in.TotalAmount.IsPositive() {
		return ArrearRecord{}, &InvalidAmountError{Requested: in.TotalAmount}
	}
	if in.Period.End.Before(in.Period.Start) {
		return ArrearRecord{}, fmt.Errorf("invalid arrear period %s", in.Period)
	}
	if in.MonthlyAmount != nil {
		expected := in.MonthlyAmount.Mul(decimal.NewFromInt(int64(in.Period.Months())))
		if in.TotalAmount.Sub(expected).Abs().GreaterThan(centTolerance) {
			return ArrearRecord{}, fmt.Errorf("total amount mismatch: expected %v for %d months, got %v",
				expected, in.Period.Months(), in.TotalAmount)
		}
	}

	now := l.now()
	rec := ArrearRecord{
		ID:          core.NewArrearID(),
		EmployeeID:  in.EmployeeID,
		Department:  in.Department,
		Period:      in.Period,
		TotalAmount: in.TotalAmount,
		Reason:      in.Reason,
		Status:      StatusPending,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := l.store.Create(ctx, rec); err != nil {
		return ArrearRecord{}, err
	}
	return rec, nil
}

// =============================================================================
// APPROVAL TRANSITIONS
// =============================================================================

// Approve moves a pending arrear to approved, making it settleable. The
// acting user is recorded on the record.
func (l *Ledger) Approve(ctx context.Context, actor core.Actor, id core.ArrearID) (ArrearRecord, error) {
	return l.transition(ctx, actor, id, "approve", StatusApproved)
}

// Reject moves a pending arrear to rejected. Terminal.
func (l *Ledger) Reject(ctx context.Context, actor core.Actor, id core.ArrearID) (ArrearRecord, error) {
	return l.transition(ctx, actor, id, "reject", StatusRejected)
}

func (l *Ledger) transition(ctx context.Context, actor core.Actor, id core.ArrearID, op string, to Status) (ArrearRecord, error) {
	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	var result ArrearRecord
	err := l.withVersionRetry(func() error {
		rec, err := l.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != StatusPending {
			return &InvalidStateError{ArrearID: id, Status: rec.Status, Operation: op}
		}

		updated := rec.Clone()
		updated.Status = to
		updated.ApprovedBy = actor.UserID
		updated.UpdatedAt = l.now()

		if err := l.store.Update(ctx, updated); err != nil {
			return err
		}
		updated.Version++
		result = updated
		return nil
	})
	return result, err
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// Settle applies one payment against the arrear's remaining balance.
//
// Fails with ErrInvalidAmount if amount <= 0 or amount > remaining, and
// with ErrInvalidState unless the arrear is approved or partially settled.
// Reapplying an already-recorded runRef is a no-op returning the current
// record.
func (l *Ledger) Settle(ctx context.Context, actor core.Actor, id core.ArrearID, amount decimal.Decimal, runRef core.PayrollRunID) (ArrearRecord, error) {
	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	var result ArrearRecord
	err := l.withVersionRetry(func() error {
		rec, err := l.store.Get(ctx, id)
		if err != nil {
			return err
		}

		if rec.HasSettlementRef(runRef) {
			result = rec
			return nil
		}

		if !rec.Status.Settleable() {
			return &InvalidStateError{ArrearID: id, Status: rec.Status, Operation: "settle"}
		}

		remaining := rec.RemainingAmount()
		if !amount.IsPositive() || amount.GreaterThan(remaining) {
			return &InvalidAmountError{ArrearID: id, Requested: amount, Remaining: remaining}
		}

		updated := rec.Clone()
		updated.SettlementHistory = append(updated.SettlementHistory, Settlement{
			Amount:        amount,
			SettledAt:     l.now(),
			PayrollRunRef: runRef,
			SettledBy:     actor.UserID,
		})
		updated.recomputeStatus()
		updated.UpdatedAt = l.now()

		if err := l.store.Update(ctx, updated); err != nil {
			return err
		}
		updated.Version++
		result = updated
		return nil
	})
	return result, err
}

// =============================================================================
// SPLIT
// =============================================================================

// Allocation describes one child arrear carved out of a split.
type Allocation struct {
	Amount decimal.Decimal
	Period core.MonthRange
}

// Split divides an arrear's remaining balance into child arrears. The
// allocations must sum to the remaining balance exactly; the parent becomes
// terminal and the children start out approved, inheriting the reason.
//
// Requires a TxStore: parent update and child inserts land atomically.
func (l *Ledger) Split(ctx context.Context, actor core.Actor, id core.ArrearID, allocations []Allocation) (ArrearRecord, []ArrearRecord, error) {
	txStore, ok := l.store.(TxStore)
	if !ok {
		return ArrearRecord{}, nil, ErrStoreRequired
	}

	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	var parent ArrearRecord
	var children []ArrearRecord
	err := l.withVersionRetry(func() error {
		rec, err := l.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !rec.Status.Settleable() {
			return &InvalidStateError{ArrearID: id, Status: rec.Status, Operation: "split"}
		}
		if len(allocations) == 0 {
			return &OverAllocationError{ArrearID: id, Allocated: decimal.Zero, Remaining: rec.RemainingAmount()}
		}

		allocated := decimal.Zero
		for _, a := range allocations {
			if !a.Amount.IsPositive() {
				return &InvalidAmountError{ArrearID: id, Requested: a.Amount, Remaining: rec.RemainingAmount()}
			}
			allocated = allocated.Add(a.Amount)
		}
		remaining := rec.RemainingAmount()
		if !allocated.Equal(remaining) {
			return &OverAllocationError{ArrearID: id, Allocated: allocated, Remaining: remaining}
		}

		now := l.now()
		updated := rec.Clone()
		updated.Status = StatusSplit
		updated.UpdatedAt = now

		newChildren := make([]ArrearRecord, 0, len(allocations))
		for _, a := range allocations {
			period := a.Period
			if period.Start.IsZero() {
				period = rec.Period
			}
			newChildren = append(newChildren, ArrearRecord{
				ID:          core.NewArrearID(),
				EmployeeID:  rec.EmployeeID,
				Department:  rec.Department,
				Period:      period,
				TotalAmount: a.Amount,
				Reason:      rec.Reason,
				Status:      StatusApproved,
				ParentID:    rec.ID,
				CreatedBy:   actor.UserID,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}

		err = txStore.WithTx(ctx, func(s Store) error {
			if err := s.Update(ctx, updated); err != nil {
				return err
			}
			for _, child := range newChildren {
				if err := s.Create(ctx, child); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		updated.Version++
		parent = updated
		children = newChildren
		return nil
	})
	return parent, children, err
}

// =============================================================================
// READS
// =============================================================================

// Get returns one record.
func (l *Ledger) Get(ctx context.Context, id core.ArrearID) (ArrearRecord, error) {
	return l.store.Get(ctx, id)
}

// PendingForEmployee returns the employee's settleable arrears (approved or
// partially settled, remaining > 0) ordered oldest period first. Payroll
// runs settle in this order unless explicitly overridden, so newer debts
// are never arbitrarily favored.
func (l *Ledger) PendingForEmployee(ctx context.Context, employeeID core.EmployeeID) ([]ArrearRecord, error) {
	recs, err := l.store.List(ctx, Filter{
		EmployeeID: &employeeID,
		Statuses:   []Status{StatusApproved, StatusPartiallySettled},
	})
	if err != nil {
		return nil, err
	}

	pending := recs[:0]
	for _, r := range recs {
		if r.RemainingAmount().IsPositive() {
			pending = append(pending, r)
		}
	}
	sortOldestFirst(pending)
	return pending, nil
}

// Find is a pure projection over the source-of-truth records; it mutates
// nothing and caches nothing.
func (l *Ledger) Find(ctx context.Context, f Filter) ([]ArrearRecord, error) {
	recs, err := l.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	sortOldestFirst(recs)
	return recs, nil
}

// sortOldestFirst orders by period start, then creation time for stability.
func sortOldestFirst(recs []ArrearRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if c := recs[i].Period.Start.Compare(recs[j].Period.Start); c != 0 {
			return c < 0
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}

// =============================================================================
// RETRY
// =============================================================================

// withVersionRetry re-runs fn while the store reports a lost optimistic
// race. In-process writers are already serialized by the per-record mutex;
// this covers writers in other processes sharing the store.
func (l *Ledger) withVersionRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt <= versionRetries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}
