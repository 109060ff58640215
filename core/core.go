/*
Package core provides shared primitives for the payroll engine.

PURPOSE:
  This package contains the small value types every other package depends on.
  Nothing here knows about attendance, bonuses, or arrears - only the
  vocabulary they share.

KEY CONCEPTS IN THIS FILE (core.go):
  - Month: A calendar month (the unit of payroll periods, "2025-01")
  - MonthRange: An inclusive span of months
  - EmployeeID / ArrearID / PayrollRunID: Type-safe identifiers
  - Actor: The acting user and workspace, passed explicitly into
    every mutating call

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, never float64
  2. Type Safety: Strong typing for IDs prevents mixing employee/arrear IDs
  3. Explicitness: No ambient session state; Actor travels as an argument

SEE ALSO:
  - attendance: consumes Month for per-period totals
  - arrears: consumes MonthRange for arrear periods
*/
package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type ArrearID string
type PayrollRunID string

// NewArrearID mints a fresh arrear identifier.
func NewArrearID() ArrearID { return ArrearID(uuid.NewString()) }

// =============================================================================
// ACTOR - Who is performing an operation
// =============================================================================

// Actor identifies the acting user and workspace for a mutating call.
// It is always passed explicitly; the engine never reads session state
// from globals.
type Actor struct {
	UserID    string
	Workspace string
}

// System is the actor used for scheduled/batch operations.
var System = Actor{UserID: "system"}

// =============================================================================
// MONTH - Calendar month, the unit of payroll periods
// =============================================================================

// Month is a calendar month, serialized as "YYYY-MM".
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY-MM" string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MustMonth is a test/fixture helper; it panics on invalid input.
func MustMonth(s string) Month {
	m, err := ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month { return Month{Year: t.Year(), Month: t.Month()} }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

func (m Month) index() int { return m.Year*12 + int(m.Month) - 1 }

// Comparison
func (m Month) Before(other Month) bool { return m.index() < other.index() }
func (m Month) After(other Month) bool  { return m.index() > other.index() }
func (m Month) Equal(other Month) bool  { return m.index() == other.index() }

// Compare returns -1, 0, or +1.
func (m Month) Compare(other Month) int {
	switch {
	case m.Before(other):
		return -1
	case m.After(other):
		return 1
	default:
		return 0
	}
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// MonthsBetween returns the inclusive month count from a to b.
// Returns at least 1 even if b precedes a, matching how arrear periods
// of a single month are counted.
func MonthsBetween(a, b Month) int {
	diff := b.index() - a.index() + 1
	if diff < 1 {
		return 1
	}
	return diff
}

// MarshalJSON serializes as "YYYY-MM".
func (m Month) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON parses "YYYY-MM".
func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// =============================================================================
// MONTH RANGE - Inclusive span of months
// =============================================================================

// MonthRange is an inclusive [Start, End] span of calendar months.
type MonthRange struct {
	Start Month
	End   Month
}

// NewMonthRange validates that end does not precede start.
func NewMonthRange(start, end Month) (MonthRange, error) {
	if end.Before(start) {
		return MonthRange{}, fmt.Errorf("invalid month range: %s before %s", end, start)
	}
	return MonthRange{Start: start, End: end}, nil
}

// Contains reports whether m falls inside the range.
func (r MonthRange) Contains(m Month) bool {
	return !m.Before(r.Start) && !m.After(r.End)
}

// Months returns the number of months covered (inclusive).
func (r MonthRange) Months() int { return MonthsBetween(r.Start, r.End) }

// Each returns all months in the range in order.
func (r MonthRange) Each() []Month {
	months := make([]Month, 0, r.Months())
	for m := r.Start; !m.After(r.End); m = m.Next() {
		months = append(months, m)
	}
	return months
}

func (r MonthRange) String() string { return r.Start.String() + " to " + r.End.String() }

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// One is the multiplicative identity, used for defaulting multipliers.
var One = decimal.NewFromInt(1)

// Hundred is used for percentage math.
var Hundred = decimal.NewFromInt(100)

// MustDecimal parses a decimal literal; panics on malformed input.
// Intended for constants and test fixtures only.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
