/*
aggregate.go - Multi-period attendance aggregation

PURPOSE:
  Sums per-month attendance totals across an arbitrary month range and
  computes the bonus-eligible percentage.

THE ONE RULE THAT MATTERS:
  Aggregation sums numerators and denominators FIRST, then divides once.
  It is NOT an average of per-month percentages. A 20/20 month followed by
  a 10/20 month is 30/40 = 75%, not (100% + 50%) / 2. A month with zero
  working days contributes zero to both sides and cannot distort the ratio.

FAIL-OPEN:
  Aggregation never fails. Missing months and zero counts degrade to zero
  values so one broken register does not halt a batch bonus run; the
  reporting layer surfaces those as warnings.
*/
package attendance

import (
	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// Stats is the aggregation result. Never persisted; recomputed on demand.
//
// INVARIANT: 0 <= Percentage <= 100 whenever Denominator > 0, and
// Percentage == 0 when Denominator == 0.
type Stats struct {
	Numerator   decimal.Decimal
	Denominator decimal.Decimal
	Percentage  decimal.Decimal
}

// Aggregate sums attendance across the full input sequence and computes the
// percentage, rounded to two decimal places with standard rounding.
func Aggregate(periods []PeriodTotals) Stats {
	numerator := decimal.Zero
	denominator := decimal.Zero

	for _, p := range periods {
		numerator = numerator.Add(p.workedDays())
		denominator = denominator.Add(p.workingDays())
	}

	percentage := decimal.Zero
	if denominator.IsPositive() {
		percentage = numerator.Div(denominator).Mul(core.Hundred).Round(2)
	}

	return Stats{
		Numerator:   numerator,
		Denominator: denominator,
		Percentage:  percentage,
	}
}

// AggregateLegacy ingests legacy-shaped records, mapping them through the
// canonical schema first. Records whose month cannot be parsed are skipped;
// their counts are treated as missing (the fail-open default).
func AggregateLegacy(records []LegacyTotals) Stats {
	periods := make([]PeriodTotals, 0, len(records))
	for _, r := range records {
		p, err := r.Canonical()
		if err != nil {
			continue
		}
		periods = append(periods, p)
	}
	return Aggregate(periods)
}
