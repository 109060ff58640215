package arrears_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakethdamerla/li-hrms-sub010/arrears"
	"github.com/sakethdamerla/li-hrms-sub010/core"
	"github.com/sakethdamerla/li-hrms-sub010/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testActor = core.Actor{UserID: "hr-admin", Workspace: "acme"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger(t *testing.T) *arrears.Ledger {
	t.Helper()
	return arrears.NewLedger(memory.New())
}

func period(start, end string) core.MonthRange {
	return core.MonthRange{Start: core.MustMonth(start), End: core.MustMonth(end)}
}

// newApprovedArrear creates and approves an arrear ready for settlement.
func newApprovedArrear(t *testing.T, ledger *arrears.Ledger, amount string) arrears.ArrearRecord {
	t.Helper()
	ctx := context.Background()

	rec, err := ledger.Create(ctx, testActor, arrears.NewArrear{
		EmployeeID:  "emp-1",
		Department:  "engineering",
		Period:      period("2025-01", "2025-03"),
		TotalAmount: dec(amount),
		Reason:      "salary revision",
	})
	require.NoError(t, err)

	rec, err = ledger.Approve(ctx, testActor, rec.ID)
	require.NoError(t, err)
	return rec
}

// =============================================================================
// CREATION AND APPROVAL
// =============================================================================

func TestCreate_StartsPending(t *testing.T) {
	ledger := newTestLedger(t)

	rec, err := ledger.Create(context.Background(), testActor, arrears.NewArrear{
		EmployeeID:  "emp-1",
		Period:      period("2025-01", "2025-03"),
		TotalAmount: dec("600"),
	})
	require.NoError(t, err)
	assert.Equal(t, arrears.StatusPending, rec.Status)
	assert.Equal(t, "hr-admin", rec.CreatedBy)
	assert.True(t, rec.RemainingAmount().Equal(dec("600")))
}

func TestCreate_RejectsNonPositiveAmount(t *testing.T) {
	ledger := newTestLedger(t)

	for _, amount := range []string{"0", "-100"} {
		_, err := ledger.Create(context.Background(), testActor, arrears.NewArrear{
			EmployeeID:  "emp-1",
			Period:      period("2025-01", "2025-01"),
			TotalAmount: dec(amount),
		})
		assert.ErrorIs(t, err, arrears.ErrInvalidAmount, "amount %s", amount)
	}
}

func TestCreate_MonthlyAmountMustReconcile(t *testing.T) {
	// GIVEN: A 3-month arrear claiming 200/month
	// THEN: The total must be 600 within a cent

	ledger := newTestLedger(t)
	monthly := dec("200")

	_, err := ledger.Create(context.Background(), testActor, arrears.NewArrear{
		EmployeeID:    "emp-1",
		Period:        period("2025-01", "2025-03"),
		TotalAmount:   dec("600"),
		MonthlyAmount: &monthly,
	})
	assert.NoError(t, err)

	_, err = ledger.Create(context.Background(), testActor, arrears.NewArrear{
		EmployeeID:    "emp-1",
		Period:        period("2025-01", "2025-03"),
		TotalAmount:   dec("650"),
		MonthlyAmount: &monthly,
	})
	assert.Error(t, err, "600 expected, 650 claimed")
}

func TestApprove_OnlyFromPending(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	rec := newApprovedArrear(t, ledger, "600")

	// Approving again from approved must fail.
	_, err := ledger.Approve(ctx, testActor, rec.ID)
	assert.ErrorIs(t, err, arrears.ErrInvalidState)

	// Rejecting an approved arrear must fail too.
	_, err = ledger.Reject(ctx, testActor, rec.ID)
	assert.ErrorIs(t, err, arrears.ErrInvalidState)
}

func TestApprove_RecordsApprover(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Create(ctx, testActor, arrears.NewArrear{
		EmployeeID:  "emp-1",
		Period:      period("2025-01", "2025-01"),
		TotalAmount: dec("100"),
	})
	require.NoError(t, err)
	assert.Empty(t, rec.ApprovedBy, "no approver before the decision")

	rec, err = ledger.Approve(ctx, core.Actor{UserID: "payroll-lead", Workspace: "acme"}, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "payroll-lead", rec.ApprovedBy)

	// The stamp must survive the store, not just the returned copy.
	got, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "payroll-lead", got.ApprovedBy)
}

func TestReject_IsTerminal(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Create(ctx, testActor, arrears.NewArrear{
		EmployeeID:  "emp-1",
		Period:      period("2025-01", "2025-01"),
		TotalAmount: dec("100"),
	})
	require.NoError(t, err)

	rec, err = ledger.Reject(ctx, testActor, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, arrears.StatusRejected, rec.Status)
	assert.Equal(t, "hr-admin", rec.ApprovedBy, "rejections record the decider too")

	_, err = ledger.Settle(ctx, testActor, rec.ID, dec("50"), "run-1")
	assert.ErrorIs(t, err, arrears.ErrInvalidState)
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestSettle_PartialThenOverdraw(t *testing.T) {
	// GIVEN: A 1000 arrear with 400 already settled
	// WHEN: A 700 settlement is attempted against the 600 remaining
	// THEN: It is rejected and the balance is untouched

	ledger := newTestLedger(t)
	ctx := context.Background()
	rec := newApprovedArrear(t, ledger, "1000")

	rec, err := ledger.Settle(ctx, testActor, rec.ID, dec("400"), "run-jan")
	require.NoError(t, err)
	assert.Equal(t, arrears.StatusPartiallySettled, rec.Status)
	assert.True(t, rec.RemainingAmount().Equal(dec("600")))

	_, err = ledger.Settle(ctx, testActor, rec.ID, dec("700"), "run-feb")
	assert.ErrorIs(t, err, arrears.ErrInvalidAmount)

	var amountErr *arrears.InvalidAmountError
	require.ErrorAs(t, err, &amountErr)
	assert.True(t, amountErr.Remaining.Equal(dec("600")))

	// Failed settlement is a no-op.
	after, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, after.RemainingAmount().Equal(dec("600")))
	assert.Len(t, after.SettlementHistory, 1)
}

func TestSettle_ExactRemainder_FullySettled(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	rec := newApprovedArrear(t, ledger, "1000")

	rec, err := ledger.Settle(ctx, testActor, rec.ID, dec("400"), "run-1")
	require.NoError(t, err)

	rec, err = ledger.Settle(ctx, testActor, rec.ID, dec("600"), "run-2")
	require.NoError(t, err)
	assert.Equal(t, arrears.StatusFullySettled, rec.Status)
	assert.True(t, rec.RemainingAmount().IsZero())

	// Terminal: no further settlements.
	_, err = ledger.Settle(ctx, testActor, rec.ID, dec("1"), "run-3")
	assert.ErrorIs(t, err, arrears.ErrInvalidState)
}

func TestSettle_RejectsNonPositiveAmount(t *testing.T) {
	ledger := newTestLedger(t)
	rec := newApprovedArrear(t, ledger, "1000")

	for _, amount := range []string{"0", "-10"} {
		_, err := ledger.Settle(context.Background(), testActor, rec.ID, dec(amount), "run-1")
		assert.ErrorIs(t, err, arrears.ErrInvalidAmount, "amount %s", amount)
	}
}

func TestSettle_UnknownArrear(t *testing.T) {
	ledger := newTestLedger(t)
	_, err := ledger.Settle(context.Background(), testActor, "no-such-id", dec("10"), "run-1")
	assert.ErrorIs(t, err, arrears.ErrNotFound)
}

func TestSettle_IdempotentPerRunRef(t *testing.T) {
	// GIVEN: A settlement already applied under run reference "run-jan"
	// WHEN: The same reference is applied again (retried payroll job)
	// THEN: No-op; the history does not grow and the balance is unchanged

	ledger := newTestLedger(t)
	ctx := context.Background()
	rec := newApprovedArrear(t, ledger, "1000")

	first, err := ledger.Settle(ctx, testActor, rec.ID, dec("400"), "run-jan")
	require.NoError(t, err)

	second, err := ledger.Settle(ctx, testActor, rec.ID, dec("400"), "run-jan")
	require.NoError(t, err)
	assert.Len(t, second.SettlementHistory, 1)
	assert.True(t, second.RemainingAmount().Equal(first.RemainingAmount()))

	// Even a different amount under the same reference is a no-op.
	third, err := ledger.Settle(ctx, testActor, rec.ID, dec("999"), "run-jan")
	require.NoError(t, err)
	assert.True(t, third.RemainingAmount().Equal(dec("600")))
}

func TestSettle_ConcurrentNeverOverdraws(t *testing.T) {
	// GIVEN: A 1000 arrear and 20 goroutines each settling 100
	// THEN: Exactly 10 succeed; settled + remaining always equals the total

	ledger := newTestLedger(t)
	ctx := context.Background()
	rec := newApprovedArrear(t, ledger, "1000")

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runRef := core.PayrollRunID(string(rune('A' + n)))
			_, errs[n] = ledger.Settle(ctx, testActor, rec.ID, dec("100"), runRef)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// Losers racing before the balance hits zero overdraw the remainder;
		// losers arriving after full settlement hit the terminal state.
		ok := errors.Is(err, arrears.ErrInvalidAmount) || errors.Is(err, arrears.ErrInvalidState)
		assert.True(t, ok, "unexpected loser error: %v", err)
	}
	assert.Equal(t, 10, succeeded)

	final, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, final.RemainingAmount().IsZero())
	assert.True(t, final.SettledAmount().Equal(dec("1000")))
	assert.Equal(t, arrears.StatusFullySettled, final.Status)
	assert.Len(t, final.SettlementHistory, 10)
}

// =============================================================================
// SPLIT
// =============================================================================

func TestSplit_ExactAllocation(t *testing.T) {
	// GIVEN: A 1000 arrear with 400 settled (600 remaining)
	// WHEN: Split into 400 + 200
	// THEN: Parent goes terminal, children are approved and carry the debt

	ledger := newTestLedger(t)
	ctx := context.Background()
	rec := newApprovedArrear(t, ledger, "1000")

	_, err := ledger.Settle(ctx, testActor, rec.ID, dec("400"), "run-1")
	require.NoError(t, err)

	parent, children, err := ledger.Split(ctx, testActor, rec.ID, []arrears.Allocation{
		{Amount: dec("400")},
		{Amount: dec("200"), Period: period("2025-02", "2025-03")},
	})
	require.NoError(t, err)

	assert.Equal(t, arrears.StatusSplit, parent.Status)
	assert.True(t, parent.Status.Terminal())

	require.Len(t, children, 2)
	childTotal := decimal.Zero
	for _, c := range children {
		assert.Equal(t, arrears.StatusApproved, c.Status)
		assert.Equal(t, rec.ID, c.ParentID)
		assert.Equal(t, rec.EmployeeID, c.EmployeeID)
		assert.Equal(t, rec.Reason, c.Reason)
		childTotal = childTotal.Add(c.TotalAmount)
	}
	// Conservation: children carry exactly the unsettled remainder.
	assert.True(t, childTotal.Equal(dec("600")))

	// First child inherits the parent's period; second kept its own.
	assert.Equal(t, rec.Period, children[0].Period)
	assert.Equal(t, period("2025-02", "2025-03"), children[1].Period)

	// Parent is terminal: no more settlements.
	_, err = ledger.Settle(ctx, testActor, rec.ID, dec("100"), "run-2")
	assert.ErrorIs(t, err, arrears.ErrInvalidState)
}

func TestSplit_MisallocationRejected(t *testing.T) {
	// GIVEN: 600 remaining
	// WHEN: Allocations sum to 700 (or 500)
	// THEN: OverAllocationError; nothing changes, atomically

	ledger := newTestLedger(t)
	ctx := context.Background()
	rec := newApprovedArrear(t, ledger, "1000")
	_, err := ledger.Settle(ctx, testActor, rec.ID, dec("400"), "run-1")
	require.NoError(t, err)

	for _, amounts := range [][]string{{"400", "300"}, {"400", "100"}} {
		allocations := make([]arrears.Allocation, len(amounts))
		for i, a := range amounts {
			allocations[i] = arrears.Allocation{Amount: dec(a)}
		}
		_, _, err := ledger.Split(ctx, testActor, rec.ID, allocations)
		assert.ErrorIs(t, err, arrears.ErrOverAllocation, "amounts %v", amounts)

		var overErr *arrears.OverAllocationError
		require.ErrorAs(t, err, &overErr)
		assert.True(t, overErr.Remaining.Equal(dec("600")))
	}

	// Untouched after the failed splits.
	after, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, arrears.StatusPartiallySettled, after.Status)
	assert.True(t, after.RemainingAmount().Equal(dec("600")))

	all, err := ledger.Find(ctx, arrears.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "no orphan children may survive a failed split")
}

func TestSplit_RejectsNonPositiveAllocation(t *testing.T) {
	ledger := newTestLedger(t)
	rec := newApprovedArrear(t, ledger, "600")

	_, _, err := ledger.Split(context.Background(), testActor, rec.ID, []arrears.Allocation{
		{Amount: dec("700")},
		{Amount: dec("-100")},
	})
	assert.ErrorIs(t, err, arrears.ErrInvalidAmount)
}

func TestSplit_EmptyAllocations(t *testing.T) {
	ledger := newTestLedger(t)
	rec := newApprovedArrear(t, ledger, "600")

	_, _, err := ledger.Split(context.Background(), testActor, rec.ID, nil)
	assert.ErrorIs(t, err, arrears.ErrOverAllocation)
}

func TestSplit_PendingArrear_Rejected(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Create(ctx, testActor, arrears.NewArrear{
		EmployeeID:  "emp-1",
		Period:      period("2025-01", "2025-01"),
		TotalAmount: dec("100"),
	})
	require.NoError(t, err)

	_, _, err = ledger.Split(ctx, testActor, rec.ID, []arrears.Allocation{{Amount: dec("100")}})
	assert.ErrorIs(t, err, arrears.ErrInvalidState)
}

// =============================================================================
// CONSERVATION UNDER CONCURRENCY
// =============================================================================

func TestConcurrentSettleAndSplit_ConservesTotal(t *testing.T) {
	// GIVEN: Settlements and a split racing on the same arrear
	// THEN: Across parent and children, settled + remaining == original total

	ledger := newTestLedger(t)
	ctx := context.Background()
	rec := newApprovedArrear(t, ledger, "1000")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runRef := core.PayrollRunID(string(rune('a' + n)))
			ledger.Settle(ctx, testActor, rec.ID, dec("100"), runRef) //nolint:errcheck
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		parent, err := ledger.Get(ctx, rec.ID)
		if err != nil {
			return
		}
		remaining := parent.RemainingAmount()
		if remaining.IsPositive() {
			ledger.Split(ctx, testActor, rec.ID, []arrears.Allocation{{Amount: remaining}}) //nolint:errcheck
		}
	}()
	wg.Wait()

	all, err := ledger.Find(ctx, arrears.Filter{})
	require.NoError(t, err)

	total := decimal.Zero
	for _, r := range all {
		if r.Status == arrears.StatusSplit {
			// A split parent's remainder moved into its children.
			total = total.Add(r.SettledAmount())
			continue
		}
		total = total.Add(r.TotalAmount)
	}
	assert.True(t, total.Equal(dec("1000")), "conservation violated: %s", total)
}

// =============================================================================
// READS AND ORDERING
// =============================================================================

func TestPendingForEmployee_OldestFirst(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	newArrear := func(start, end string) core.ArrearID {
		rec, err := ledger.Create(ctx, testActor, arrears.NewArrear{
			EmployeeID:  "emp-1",
			Period:      period(start, end),
			TotalAmount: dec("100"),
		})
		require.NoError(t, err)
		_, err = ledger.Approve(ctx, testActor, rec.ID)
		require.NoError(t, err)
		return rec.ID
	}

	newest := newArrear("2025-06", "2025-06")
	oldest := newArrear("2024-11", "2024-12")
	middle := newArrear("2025-02", "2025-03")

	pending, err := ledger.PendingForEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, oldest, pending[0].ID)
	assert.Equal(t, middle, pending[1].ID)
	assert.Equal(t, newest, pending[2].ID)
}

func TestPendingForEmployee_ExcludesOtherStates(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	// Pending (never approved): excluded.
	_, err := ledger.Create(ctx, testActor, arrears.NewArrear{
		EmployeeID:  "emp-1",
		Period:      period("2025-01", "2025-01"),
		TotalAmount: dec("100"),
	})
	require.NoError(t, err)

	// Fully settled: excluded.
	settled := newApprovedArrear(t, ledger, "200")
	_, err = ledger.Settle(ctx, testActor, settled.ID, dec("200"), "run-1")
	require.NoError(t, err)

	// Partially settled: included.
	partial := newApprovedArrear(t, ledger, "300")
	_, err = ledger.Settle(ctx, testActor, partial.ID, dec("100"), "run-2")
	require.NoError(t, err)

	pending, err := ledger.PendingForEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, partial.ID, pending[0].ID)
	assert.True(t, pending[0].RemainingAmount().Equal(dec("200")))
}

func TestFind_FilterByDepartmentAndMonth(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Create(ctx, testActor, arrears.NewArrear{
		EmployeeID: "emp-1", Department: "engineering",
		Period: period("2025-01", "2025-03"), TotalAmount: dec("100"),
	})
	require.NoError(t, err)
	_, err = ledger.Create(ctx, testActor, arrears.NewArrear{
		EmployeeID: "emp-2", Department: "sales",
		Period: period("2025-01", "2025-03"), TotalAmount: dec("100"),
	})
	require.NoError(t, err)

	dept := "engineering"
	feb := core.MustMonth("2025-02")
	recs, err := ledger.Find(ctx, arrears.Filter{Department: &dept, Covering: &feb})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, core.EmployeeID("emp-1"), recs[0].EmployeeID)

	jun := core.MustMonth("2025-06")
	recs, err = ledger.Find(ctx, arrears.Filter{Department: &dept, Covering: &jun})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
