/*
Package payroll orchestrates a payroll run over the other engines.

PURPOSE:
  Ties attendance aggregation, bonus resolution, and arrears settlement
  together the way a monthly run consumes them. The package holds no state
  of its own: bonus computation is pure, and settlement planning is split
  from settlement application so a run can be previewed before any money
  moves.

PLAN THEN APPLY:
  PlanSettlements is a pure function over a snapshot of pending arrears and
  an available budget; ApplyPlan pushes the plan through the ledger under
  one payroll run reference, so re-running a partially applied plan is
  harmless.

SEE ALSO:
  - attendance: period totals and percentage math
  - bonus: tier resolution
  - arrears: the ledger ApplyPlan settles against
*/
package payroll

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/arrears"
	"github.com/sakethdamerla/li-hrms-sub010/attendance"
	"github.com/sakethdamerla/li-hrms-sub010/bonus"
	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// Engine runs payroll-level computations. Construct with NewEngine.
type Engine struct {
	ledger *arrears.Ledger
}

func NewEngine(ledger *arrears.Ledger) *Engine {
	return &Engine{ledger: ledger}
}

// =============================================================================
// BONUS COMPUTATION
// =============================================================================

// BonusResult carries the attendance stats alongside the resolved amount so
// callers can show the employee why the tier matched.
type BonusResult struct {
	Stats  attendance.Stats
	Amount decimal.Decimal
}

// ComputeBonus aggregates the periods and resolves the bonus in one step.
// Pure: no store access, no mutation.
func ComputeBonus(emp bonus.CompensationSnapshot, policy bonus.Policy, periods []attendance.PeriodTotals) (BonusResult, error) {
	if err := policy.Validate(); err != nil {
		return BonusResult{}, err
	}
	stats := attendance.Aggregate(periods)
	return BonusResult{Stats: stats, Amount: bonus.Resolve(emp, policy, stats)}, nil
}

// =============================================================================
// SETTLEMENT PLANNING
// =============================================================================

// PlannedSettlement is one intended payment in a run, before it is applied.
type PlannedSettlement struct {
	ArrearID core.ArrearID
	Amount   decimal.Decimal
}

// PlanSettlements allocates an available budget across pending arrears,
// oldest period first, never exceeding any arrear's remaining balance.
// Pure: planning against a stale snapshot is safe because ApplyPlan
// revalidates every amount through the ledger.
func PlanSettlements(pending []arrears.ArrearRecord, available decimal.Decimal) []PlannedSettlement {
	var plan []PlannedSettlement
	left := available
	for _, rec := range pending {
		if !left.IsPositive() {
			break
		}
		remaining := rec.RemainingAmount()
		if !remaining.IsPositive() {
			continue
		}
		amount := decimal.Min(remaining, left)
		plan = append(plan, PlannedSettlement{ArrearID: rec.ID, Amount: amount})
		left = left.Sub(amount)
	}
	return plan
}

// ApplyPlan settles each planned amount under a single payroll run
// reference. Arrears already settled under this reference are skipped by
// the ledger's idempotency check, so a crashed run can be re-applied.
//
// Stops at the first failure and returns the records settled so far; the
// caller re-plans from fresh state rather than pushing a stale plan.
func (e *Engine) ApplyPlan(ctx context.Context, actor core.Actor, runRef core.PayrollRunID, plan []PlannedSettlement) ([]arrears.ArrearRecord, error) {
	settled := make([]arrears.ArrearRecord, 0, len(plan))
	for _, p := range plan {
		rec, err := e.ledger.Settle(ctx, actor, p.ArrearID, p.Amount, runRef)
		if err != nil {
			return settled, fmt.Errorf("settling arrear %s: %w", p.ArrearID, err)
		}
		settled = append(settled, rec)
	}
	return settled, nil
}

// SettleForEmployee plans and applies in one call: the employee's pending
// arrears are loaded oldest first and the budget is pushed through them.
func (e *Engine) SettleForEmployee(ctx context.Context, actor core.Actor, employeeID core.EmployeeID, available decimal.Decimal, runRef core.PayrollRunID) ([]arrears.ArrearRecord, error) {
	pending, err := e.ledger.PendingForEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return e.ApplyPlan(ctx, actor, runRef, PlanSettlements(pending, available))
}

// =============================================================================
// REPORTING
// =============================================================================

// Outstanding summarizes a department's open arrears for a month.
type Outstanding struct {
	Department string
	Month      core.Month
	Count      int
	Total      decimal.Decimal
}

// DepartmentOutstanding totals the unsettled balances of a department's
// arrears whose period covers the given month. Read-only projection.
func (e *Engine) DepartmentOutstanding(ctx context.Context, department string, month core.Month) (Outstanding, error) {
	recs, err := e.ledger.Find(ctx, arrears.Filter{
		Department: &department,
		Statuses:   []arrears.Status{arrears.StatusApproved, arrears.StatusPartiallySettled},
		Covering:   &month,
	})
	if err != nil {
		return Outstanding{}, err
	}

	out := Outstanding{Department: department, Month: month, Total: decimal.Zero}
	for _, r := range recs {
		remaining := r.RemainingAmount()
		if remaining.IsPositive() {
			out.Count++
			out.Total = out.Total.Add(remaining)
		}
	}
	return out, nil
}
