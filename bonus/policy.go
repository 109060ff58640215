/*
policy.go - Bonus policy definitions

PURPOSE:
  A BonusPolicy maps an aggregated attendance percentage to a bonus amount.
  It has two parts: the salary basis (what the bonus is a percentage OF) and
  an ordered set of tiers (attendance range -> bonus percentage).

TIER ORDERING IS LAW:
  Tier ranges are inclusive on both bounds, and the FIRST tier in policy
  order whose range contains the percentage wins. When ranges overlap, the
  tie-break is declaration order, not the tightest range. This is a
  documented design choice carried over from the policy configuration UI,
  where administrators order tiers deliberately.

SEE ALSO:
  - resolver.go: applies a policy to an employee's aggregated stats
*/
package bonus

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Basis selects what the bonus percentage applies to.
type Basis string

const (
	// BasisGrossSalary computes the bonus on gross salary times an
	// optional multiplier.
	BasisGrossSalary Basis = "gross_salary"

	// BasisFixedAmount computes the bonus on a fixed amount configured in
	// the policy, ignoring the employee's salary.
	BasisFixedAmount Basis = "fixed_amount"
)

// Tier maps an inclusive attendance-percentage range to a bonus percentage.
type Tier struct {
	MinPercentage decimal.Decimal `json:"minPercentage"`
	MaxPercentage decimal.Decimal `json:"maxPercentage"`
	BonusPercent  decimal.Decimal `json:"bonusPercentage"`
}

// Contains reports whether the attendance percentage falls inside the
// tier's inclusive range.
func (t Tier) Contains(percentage decimal.Decimal) bool {
	return percentage.GreaterThanOrEqual(t.MinPercentage) &&
		percentage.LessThanOrEqual(t.MaxPercentage)
}

// Policy is a bonus policy configuration.
type Policy struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Basis Basis `json:"salaryComponent"`

	// GrossSalaryMultiplier scales gross salary before the tier percentage
	// applies. Zero means unset and defaults to 1.
	GrossSalaryMultiplier decimal.Decimal `json:"grossSalaryMultiplier"`

	// FixedBonusAmount is the basis value when Basis is BasisFixedAmount.
	FixedBonusAmount decimal.Decimal `json:"fixedBonusAmount"`

	// Tiers are scanned in declaration order; first match wins.
	Tiers []Tier `json:"tiers"`
}

var errNoTiers = errors.New("policy has no tiers")

// Validate checks the policy at the configuration boundary. Resolution
// itself never fails; this exists so malformed policies are rejected when
// saved rather than silently paying zero bonuses.
func (p Policy) Validate() error {
	switch p.Basis {
	case BasisGrossSalary, BasisFixedAmount:
	default:
		return fmt.Errorf("unknown salary basis %q", p.Basis)
	}

	if p.Basis == BasisFixedAmount && !p.FixedBonusAmount.IsPositive() {
		return errors.New("fixed_amount basis requires a positive fixedBonusAmount")
	}
	if p.GrossSalaryMultiplier.IsNegative() {
		return errors.New("grossSalaryMultiplier cannot be negative")
	}

	if len(p.Tiers) == 0 {
		return errNoTiers
	}
	for i, t := range p.Tiers {
		if t.MinPercentage.IsNegative() || t.MaxPercentage.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("tier %d: range must stay within [0, 100]", i)
		}
		if t.MaxPercentage.LessThan(t.MinPercentage) {
			return fmt.Errorf("tier %d: maxPercentage below minPercentage", i)
		}
	}
	return nil
}
