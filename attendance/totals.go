/*
totals.go - Canonical per-month attendance totals

PURPOSE:
  One PeriodTotals record per employee per calendar month, produced by the
  external attendance-closing process and consumed read-only by the
  aggregator. Counts are decimal because half days exist.

LEGACY FIELD NAMES:
  Older pay-register exports disagree on the on-duty field name
  ("totalsODDays" vs "totalODDays"). That tolerance lives HERE, in one
  explicit conversion at the ingestion boundary, and nowhere else - the rest
  of the engine only ever sees the canonical schema.

SEE ALSO:
  - aggregate.go: turns a sequence of these into a percentage
*/
package attendance

import (
	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// PeriodTotals is the canonical attendance summary for one employee and one
// calendar month. Immutable once finalized. Counts are whole or half days.
type PeriodTotals struct {
	Month   core.Month
	Present decimal.Decimal
	OnDuty  decimal.Decimal
	Absent  decimal.Decimal
	Leave   decimal.Decimal
}

// workedDays is the numerator contribution: days the employee counts as
// present for bonus purposes.
func (t PeriodTotals) workedDays() decimal.Decimal {
	return t.Present.Add(t.OnDuty)
}

// workingDays is the denominator contribution: every day the register
// accounted for. A month with zero working days contributes nothing.
func (t PeriodTotals) workingDays() decimal.Decimal {
	return t.Present.Add(t.OnDuty).Add(t.Absent).Add(t.Leave)
}

// =============================================================================
// LEGACY COMPATIBILITY MAPPING
// =============================================================================

// LegacyTotals is the wire shape of historical pay-register exports.
// Absent fields unmarshal to zero, which is the documented fail-open
// default: a missing count never halts a batch run.
type LegacyTotals struct {
	Month            string          `json:"month"`
	TotalPresentDays decimal.Decimal `json:"totalPresentDays"`
	TotalsODDays     decimal.Decimal `json:"totalsODDays"`
	TotalODDays      decimal.Decimal `json:"totalODDays"`
	TotalAbsentDays  decimal.Decimal `json:"totalAbsentDays"`
	TotalLeaveDays   decimal.Decimal `json:"totalLeaveDays"`
}

// Canonical converts a legacy record to the canonical schema. The two
// spellings of the on-duty field are reconciled here: the newer
// "totalsODDays" wins when both carry a value.
func (lt LegacyTotals) Canonical() (PeriodTotals, error) {
	month, err := core.ParseMonth(lt.Month)
	if err != nil {
		return PeriodTotals{}, err
	}

	od := lt.TotalsODDays
	if od.IsZero() {
		od = lt.TotalODDays
	}

	return PeriodTotals{
		Month:   month,
		Present: lt.TotalPresentDays,
		OnDuty:  od,
		Absent:  lt.TotalAbsentDays,
		Leave:   lt.TotalLeaveDays,
	}, nil
}
