/*
resolver.go - Tiered bonus resolution

PURPOSE:
  Applies a BonusPolicy to an employee's aggregated attendance stats and
  produces the bonus amount.

FAIL-OPEN:
  Resolution never errors. No matching tier means a zero bonus, not a
  failure - a single employee outside every tier must not halt a batch run.

ROUNDING:
  None. The output is the exact decimal product; currency rounding is the
  caller's policy, applied once at the payroll edge.
*/
package bonus

import (
	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/attendance"
	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// CompensationSnapshot is the slice of an employee record the resolver
// needs: identity plus the salary figure the basis applies to.
type CompensationSnapshot struct {
	EmployeeID  core.EmployeeID
	GrossSalary decimal.Decimal
}

// Resolve computes the bonus amount for one employee.
//
// GUARANTEES:
//   - result >= 0 always
//   - result <= salary basis value for any tier with BonusPercent <= 100
func Resolve(emp CompensationSnapshot, policy Policy, stats attendance.Stats) decimal.Decimal {
	salaryValue := basisValue(emp, policy)

	tier, ok := matchTier(policy.Tiers, stats.Percentage)
	if !ok || !tier.BonusPercent.IsPositive() {
		return decimal.Zero
	}

	return salaryValue.Mul(tier.BonusPercent).Div(core.Hundred)
}

// basisValue computes the amount the tier percentage applies to.
func basisValue(emp CompensationSnapshot, policy Policy) decimal.Decimal {
	switch policy.Basis {
	case BasisGrossSalary:
		multiplier := policy.GrossSalaryMultiplier
		if multiplier.IsZero() {
			multiplier = core.One
		}
		return emp.GrossSalary.Mul(multiplier)
	case BasisFixedAmount:
		return policy.FixedBonusAmount
	default:
		return decimal.Zero
	}
}

// matchTier returns the first tier in declaration order containing the
// percentage. Declaration order is the tie-break for overlapping ranges.
func matchTier(tiers []Tier, percentage decimal.Decimal) (Tier, bool) {
	for _, t := range tiers {
		if t.Contains(percentage) {
			return t, true
		}
	}
	return Tier{}, false
}
