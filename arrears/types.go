/*
Package arrears owns the lifecycle of money owed to employees.

PURPOSE:
  An arrear is a recorded back-payment owed to one employee for a past
  period, settled incrementally across payroll runs. This package holds the
  record type, its settlement/split state machine, and the balance
  invariants that must survive every mutation.

KEY CONCEPTS IN THIS FILE (types.go):
  - ArrearRecord: the owed amount, its period, and its settlement history
  - Settlement: one payment applied against the remaining balance
  - Status: the state machine (pending -> approved -> ... -> fully_settled)

CRITICAL INVARIANTS:
  1. TotalAmount is fixed at creation. Never edited.
  2. SettlementHistory is append-only. Corrections create new arrears.
  3. RemainingAmount is ALWAYS recomputed from the history - there is no
     stored balance field that can drift.
  4. RemainingAmount >= 0 after every operation, including concurrent ones.

SEE ALSO:
  - ledger.go: the operations that mutate records under these invariants
  - store.go: the persistence contract (read/append/update-with-version)
*/
package arrears

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// =============================================================================
// STATUS - The arrear state machine
// =============================================================================

type Status string

const (
	// StatusPending: created, awaiting approval.
	StatusPending Status = "pending"
	// StatusApproved: eligible for settlement.
	StatusApproved Status = "approved"
	// StatusPartiallySettled: some, but not all, of the amount is paid.
	StatusPartiallySettled Status = "partially_settled"
	// StatusFullySettled: remaining balance is zero. Terminal.
	StatusFullySettled Status = "fully_settled"
	// StatusRejected: approval denied. Terminal.
	StatusRejected Status = "rejected"
	// StatusSplit: remaining balance divided into child arrears. Terminal;
	// the children carry the debt from here on.
	StatusSplit Status = "split"
)

// Settleable reports whether settlements may be applied in this state.
func (s Status) Settleable() bool {
	return s == StatusApproved || s == StatusPartiallySettled
}

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFullySettled || s == StatusRejected || s == StatusSplit
}

// =============================================================================
// SETTLEMENT - One payment against an arrear
// =============================================================================

// Settlement records a single payment applied against an arrear's remaining
// balance. Entries are append-only and ordered.
type Settlement struct {
	Amount        decimal.Decimal
	SettledAt     time.Time
	PayrollRunRef core.PayrollRunID
	SettledBy     string
}

// =============================================================================
// ARREAR RECORD
// =============================================================================

// ArrearRecord represents money owed to one employee for a past period.
type ArrearRecord struct {
	ID         core.ArrearID
	EmployeeID core.EmployeeID
	Department string

	// Period is the inclusive month range the arrear covers.
	Period core.MonthRange

	// TotalAmount is fixed at creation and never edited.
	TotalAmount decimal.Decimal

	Reason string
	Status Status

	// SettlementHistory is ordered and append-only.
	SettlementHistory []Settlement

	// ParentID links a split child back to the arrear it came from.
	ParentID core.ArrearID

	// Version supports optimistic concurrency at the store. Incremented on
	// every successful update.
	Version int64

	CreatedBy string

	// ApprovedBy records who decided the pending arrear, for approvals and
	// rejections alike. Empty until the decision is made.
	ApprovedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettledAmount is the sum of all settlements. Monotonically non-decreasing
// because the history is append-only.
func (r *ArrearRecord) SettledAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range r.SettlementHistory {
		sum = sum.Add(s.Amount)
	}
	return sum
}

// RemainingAmount is always derived from the history, never stored.
func (r *ArrearRecord) RemainingAmount() decimal.Decimal {
	return r.TotalAmount.Sub(r.SettledAmount())
}

// HasSettlementRef reports whether a settlement with this payroll run
// reference was already applied. Used to make retried writes idempotent.
func (r *ArrearRecord) HasSettlementRef(ref core.PayrollRunID) bool {
	for _, s := range r.SettlementHistory {
		if s.PayrollRunRef == ref {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. The ledger mutates copies and persists them, so
// a failed write leaves nothing behind.
func (r *ArrearRecord) Clone() ArrearRecord {
	out := *r
	out.SettlementHistory = make([]Settlement, len(r.SettlementHistory))
	copy(out.SettlementHistory, r.SettlementHistory)
	return out
}

// recomputeStatus derives the settlement-phase status from the history.
// Only valid while the record is in a settleable state.
func (r *ArrearRecord) recomputeStatus() {
	settled := r.SettledAmount()
	switch {
	case settled.Equal(r.TotalAmount) && len(r.SettlementHistory) > 0:
		r.Status = StatusFullySettled
	case settled.IsPositive():
		r.Status = StatusPartiallySettled
	default:
		r.Status = StatusApproved
	}
}
