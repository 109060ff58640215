/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ON THE WIRE:
  Amounts are decimal strings ("1234.50"), never floats. shopspring/decimal
  accepts both quoted and bare numbers on input.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - arrears/types.go: The domain records these project
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/arrears"
	"github.com/sakethdamerla/li-hrms-sub010/attendance"
	"github.com/sakethdamerla/li-hrms-sub010/bonus"
	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// =============================================================================
// ARREAR TYPES
// =============================================================================

// ArrearDTO represents an arrear in API responses.
type ArrearDTO struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employee_id"`
	Department      string          `json:"department,omitempty"`
	StartMonth      string          `json:"start_month"`
	EndMonth        string          `json:"end_month"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	SettledAmount   decimal.Decimal `json:"settled_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Reason          string          `json:"reason,omitempty"`
	Status          string          `json:"status"`
	Settlements     []SettlementDTO `json:"settlements"`
	ParentID        string          `json:"parent_id,omitempty"`
	Version         int64           `json:"version"`
	CreatedBy       string          `json:"created_by,omitempty"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// SettlementDTO represents one settlement in an arrear's history.
type SettlementDTO struct {
	Amount        decimal.Decimal `json:"amount"`
	SettledAt     string          `json:"settled_at"`
	PayrollRunRef string          `json:"payroll_run_ref"`
	SettledBy     string          `json:"settled_by,omitempty"`
}

// CreateArrearRequest is the request to record a new arrear.
type CreateArrearRequest struct {
	EmployeeID  string          `json:"employee_id"`
	Department  string          `json:"department,omitempty"`
	StartMonth  string          `json:"start_month"`
	EndMonth    string          `json:"end_month"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Reason      string          `json:"reason,omitempty"`

	// MonthlyAmount, when present, must reconcile with total_amount over
	// the period.
	MonthlyAmount *decimal.Decimal `json:"monthly_amount,omitempty"`
}

// SettleRequest applies one payment against an arrear.
type SettleRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PayrollRunRef string          `json:"payroll_run_ref"`
}

// SplitRequest divides an arrear's remaining balance into children.
type SplitRequest struct {
	Allocations []AllocationDTO `json:"allocations"`
}

// AllocationDTO is one child allocation in a split.
type AllocationDTO struct {
	Amount     decimal.Decimal `json:"amount"`
	StartMonth string          `json:"start_month,omitempty"`
	EndMonth   string          `json:"end_month,omitempty"`
}

// SplitResponseDTO returns the terminal parent and its children.
type SplitResponseDTO struct {
	Parent   ArrearDTO   `json:"parent"`
	Children []ArrearDTO `json:"children"`
}

// EmployeeSettleRequest runs oldest-first settlement for one employee.
type EmployeeSettleRequest struct {
	Available     decimal.Decimal `json:"available"`
	PayrollRunRef string          `json:"payroll_run_ref"`
}

// =============================================================================
// BONUS TYPES
// =============================================================================

// ComputeBonusRequest carries everything a bonus computation needs.
type ComputeBonusRequest struct {
	Employee struct {
		ID          string          `json:"id"`
		GrossSalary decimal.Decimal `json:"gross_salary"`
	} `json:"employee"`
	Policy  bonus.Policy      `json:"policy"`
	Periods []PeriodTotalsDTO `json:"periods"`

	// LegacyRecords accepts the historical attendance schema instead of
	// periods. Only one of the two should be set.
	LegacyRecords []attendance.LegacyTotals `json:"legacy_records,omitempty"`
}

// PeriodTotalsDTO is one month of attendance counts.
type PeriodTotalsDTO struct {
	Month   string          `json:"month"`
	Present decimal.Decimal `json:"present"`
	OnDuty  decimal.Decimal `json:"on_duty"`
	Absent  decimal.Decimal `json:"absent"`
	Leave   decimal.Decimal `json:"leave"`
}

// ComputeBonusResponse returns the amount with the stats that produced it.
type ComputeBonusResponse struct {
	EmployeeID  string          `json:"employee_id"`
	Numerator   decimal.Decimal `json:"numerator"`
	Denominator decimal.Decimal `json:"denominator"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
}

// =============================================================================
// ATTENDANCE TYPES
// =============================================================================

// NormalizeRequest normalizes a batch of raw punch values.
type NormalizeRequest struct {
	// Values are raw cell contents: spreadsheet serial numbers or
	// timestamp text, exactly as uploaded.
	Values []any `json:"values"`

	// FallbackDate supplies the date for time-only values, "YYYY-MM-DD".
	FallbackDate string `json:"fallback_date,omitempty"`
}

// NormalizedValueDTO is one normalization outcome. Invalid inputs produce
// ok=false with a null timestamp, never an error.
type NormalizedValueDTO struct {
	Input      any     `json:"input"`
	Normalized *string `json:"normalized"`
	OK         bool    `json:"ok"`
}

// AggregateRequest sums attendance totals without resolving a policy.
// Accepts either canonical periods or legacy records.
type AggregateRequest struct {
	Periods       []PeriodTotalsDTO         `json:"periods"`
	LegacyRecords []attendance.LegacyTotals `json:"legacy_records,omitempty"`
}

// AggregateResponse is the raw aggregation result.
type AggregateResponse struct {
	Numerator   decimal.Decimal `json:"numerator"`
	Denominator decimal.Decimal `json:"denominator"`
	Percentage  decimal.Decimal `json:"percentage"`
}

// =============================================================================
// REPORTING TYPES
// =============================================================================

// OutstandingDTO summarizes a department's open arrears for one month.
type OutstandingDTO struct {
	Department string          `json:"department"`
	Month      string          `json:"month"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toArrearDTO(rec arrears.ArrearRecord) ArrearDTO {
	settlements := make([]SettlementDTO, len(rec.SettlementHistory))
	for i, s := range rec.SettlementHistory {
		settlements[i] = SettlementDTO{
			Amount:        s.Amount,
			SettledAt:     s.SettledAt.Format(time.RFC3339),
			PayrollRunRef: string(s.PayrollRunRef),
			SettledBy:     s.SettledBy,
		}
	}
	return ArrearDTO{
		ID:              string(rec.ID),
		EmployeeID:      string(rec.EmployeeID),
		Department:      rec.Department,
		StartMonth:      rec.Period.Start.String(),
		EndMonth:        rec.Period.End.String(),
		TotalAmount:     rec.TotalAmount,
		SettledAmount:   rec.SettledAmount(),
		RemainingAmount: rec.RemainingAmount(),
		Reason:          rec.Reason,
		Status:          string(rec.Status),
		Settlements:     settlements,
		ParentID:        string(rec.ParentID),
		Version:         rec.Version,
		CreatedBy:       rec.CreatedBy,
		ApprovedBy:      rec.ApprovedBy,
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       rec.UpdatedAt.Format(time.RFC3339),
	}
}

func toArrearDTOs(recs []arrears.ArrearRecord) []ArrearDTO {
	dtos := make([]ArrearDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toArrearDTO(rec)
	}
	return dtos
}

func (p PeriodTotalsDTO) toDomain() (attendance.PeriodTotals, error) {
	month, err := core.ParseMonth(p.Month)
	if err != nil {
		return attendance.PeriodTotals{}, err
	}
	return attendance.PeriodTotals{
		Month:   month,
		Present: p.Present,
		OnDuty:  p.OnDuty,
		Absent:  p.Absent,
		Leave:   p.Leave,
	}, nil
}
