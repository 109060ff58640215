/*
errors.go - Centralized error types for the arrears ledger

PURPOSE:
  All ledger failures in one place. Every failure is all-or-nothing: a
  rejected operation leaves the record exactly as it was.

ERROR TAXONOMY:
  ErrInvalidAmount   settlement amount out of bounds (<= 0 or > remaining)
  ErrInvalidState    operation attempted on a terminal/ineligible arrear
  ErrOverAllocation  split amounts do not reconcile with the remaining balance
  ErrNotFound        unknown arrear ID
  ErrVersionConflict optimistic lock lost; the ledger retries these
  ErrDuplicateID     store already holds a record with this ID
  ErrStoreRequired   operation needs a transactional store

USAGE:
  if errors.Is(err, arrears.ErrInvalidAmount) { ... }

  var amountErr *arrears.InvalidAmountError
  if errors.As(err, &amountErr) {
      fmt.Println(amountErr.Remaining)
  }
*/
package arrears

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a settlement amount is not positive
	// or exceeds the remaining balance.
	ErrInvalidAmount = errors.New("invalid settlement amount")

	// ErrInvalidState is returned when an operation is attempted on an
	// arrear whose status does not allow it.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrOverAllocation is returned when split allocations do not sum to
	// the remaining balance exactly.
	ErrOverAllocation = errors.New("split allocations do not reconcile")

	// ErrNotFound is returned when an arrear ID is unknown.
	ErrNotFound = errors.New("arrear not found")

	// ErrVersionConflict is returned by stores when an update lost an
	// optimistic-concurrency race. Retryable.
	ErrVersionConflict = errors.New("concurrent modification detected")

	// ErrDuplicateID is returned when creating a record whose ID exists.
	ErrDuplicateID = errors.New("arrear id already exists")

	// ErrStoreRequired is returned when an operation (split) needs a store
	// with transaction support and the configured store has none.
	ErrStoreRequired = errors.New("operation requires a transactional store")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError carries the rejected amount and what was available.
type InvalidAmountError struct {
	ArrearID  core.ArrearID
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid settlement amount %v for arrear %s: remaining %v",
		e.Requested, e.ArrearID, e.Remaining)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// InvalidStateError names the operation and the status that blocked it.
type InvalidStateError struct {
	ArrearID  core.ArrearID
	Status    Status
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s arrear %s in status %s", e.Operation, e.ArrearID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// OverAllocationError carries the reconciliation failure detail.
type OverAllocationError struct {
	ArrearID  core.ArrearID
	Allocated decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("split of arrear %s allocates %v but remaining is %v",
		e.ArrearID, e.Allocated, e.Remaining)
}

func (e *OverAllocationError) Unwrap() error { return ErrOverAllocation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsClientError returns true if the error is due to invalid caller input
// rather than a fault in the engine or store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrOverAllocation)
}
