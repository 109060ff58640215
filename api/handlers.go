/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the arrears ledger and bonus computation via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Arrears:
    GET    /api/arrears                   List arrears (filterable)
    POST   /api/arrears                   Record a new arrear
    GET    /api/arrears/{id}              Get one arrear
    POST   /api/arrears/{id}/approve      Approve a pending arrear
    POST   /api/arrears/{id}/reject       Reject a pending arrear
    POST   /api/arrears/{id}/settle       Apply one settlement
    POST   /api/arrears/{id}/split        Split the remaining balance

  Employees:
    GET    /api/employees/{id}/arrears/pending  Settleable arrears, oldest first
    POST   /api/employees/{id}/arrears/settle   Budgeted oldest-first settlement

  Bonus:
    POST   /api/bonus/compute             Attendance-tiered bonus computation

  Attendance:
    POST   /api/attendance/normalize      Normalize raw punch timestamps

  Reports:
    GET    /api/reports/outstanding       Department outstanding balance

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ledger, engine)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid amounts, over-allocation
  - 404: Arrear not found
  - 409: State conflicts (terminal arrear, lost optimistic race, duplicate)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. The acting user is taken from the
  X-User-ID header; deployments front this with their own auth layer.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakethdamerla/li-hrms-sub010/arrears"
	"github.com/sakethdamerla/li-hrms-sub010/attendance"
	"github.com/sakethdamerla/li-hrms-sub010/bonus"
	"github.com/sakethdamerla/li-hrms-sub010/core"
	"github.com/sakethdamerla/li-hrms-sub010/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *arrears.Ledger
	Engine *payroll.Engine
}

// NewHandler creates a new handler over the given ledger.
func NewHandler(ledger *arrears.Ledger) *Handler {
	return &Handler{
		Ledger: ledger,
		Engine: payroll.NewEngine(ledger),
	}
}

// actor builds the acting user from request headers.
func actor(r *http.Request) core.Actor {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = "anonymous"
	}
	return core.Actor{
		UserID:    userID,
		Workspace: r.Header.Get("X-Workspace"),
	}
}

// =============================================================================
// ARREAR HANDLERS
// =============================================================================

// CreateArrear records a new arrear in pending status.
func (h *Handler) CreateArrear(w http.ResponseWriter, r *http.Request) {
	var req CreateArrearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := core.ParseMonth(req.StartMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_month (use YYYY-MM)", err)
		return
	}
	end, err := core.ParseMonth(req.EndMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_month (use YYYY-MM)", err)
		return
	}
	period, err := core.NewMonthRange(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	rec, err := h.Ledger.Create(r.Context(), actor(r), arrears.NewArrear{
		EmployeeID:    core.EmployeeID(req.EmployeeID),
		Department:    req.Department,
		Period:        period,
		TotalAmount:   req.TotalAmount,
		Reason:        req.Reason,
		MonthlyAmount: req.MonthlyAmount,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toArrearDTO(rec))
}

// GetArrear returns a single arrear with its settlement history.
func (h *Handler) GetArrear(w http.ResponseWriter, r *http.Request) {
	id := core.ArrearID(chi.URLParam(r, "id"))

	rec, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearDTO(rec))
}

// ListArrears returns arrears matching the query filters.
func (h *Handler) ListArrears(w http.ResponseWriter, r *http.Request) {
	var f arrears.Filter
	q := r.URL.Query()

	if v := q.Get("employee_id"); v != "" {
		id := core.EmployeeID(v)
		f.EmployeeID = &id
	}
	if v := q.Get("department"); v != "" {
		f.Department = &v
	}
	for _, v := range q["status"] {
		f.Statuses = append(f.Statuses, arrears.Status(v))
	}
	if v := q.Get("covering"); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid covering month (use YYYY-MM)", err)
			return
		}
		f.Covering = &m
	}

	recs, err := h.Ledger.Find(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list arrears", err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearDTOs(recs))
}

// ApproveArrear moves a pending arrear to approved.
func (h *Handler) ApproveArrear(w http.ResponseWriter, r *http.Request) {
	id := core.ArrearID(chi.URLParam(r, "id"))

	rec, err := h.Ledger.Approve(r.Context(), actor(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearDTO(rec))
}

// RejectArrear moves a pending arrear to rejected.
func (h *Handler) RejectArrear(w http.ResponseWriter, r *http.Request) {
	id := core.ArrearID(chi.URLParam(r, "id"))

	rec, err := h.Ledger.Reject(r.Context(), actor(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearDTO(rec))
}

// SettleArrear applies one payment against the arrear's remaining balance.
func (h *Handler) SettleArrear(w http.ResponseWriter, r *http.Request) {
	id := core.ArrearID(chi.URLParam(r, "id"))

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PayrollRunRef == "" {
		writeError(w, http.StatusBadRequest, "payroll_run_ref is required", nil)
		return
	}

	rec, err := h.Ledger.Settle(r.Context(), actor(r), id, req.Amount, core.PayrollRunID(req.PayrollRunRef))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearDTO(rec))
}

// SplitArrear divides the remaining balance into child arrears.
func (h *Handler) SplitArrear(w http.ResponseWriter, r *http.Request) {
	id := core.ArrearID(chi.URLParam(r, "id"))

	var req SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	allocations := make([]arrears.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		alloc := arrears.Allocation{Amount: a.Amount}
		if a.StartMonth != "" || a.EndMonth != "" {
			start, err := core.ParseMonth(a.StartMonth)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid allocation start_month", err)
				return
			}
			end, err := core.ParseMonth(a.EndMonth)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid allocation end_month", err)
				return
			}
			period, err := core.NewMonthRange(start, end)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid allocation period", err)
				return
			}
			alloc.Period = period
		}
		allocations = append(allocations, alloc)
	}

	parent, children, err := h.Ledger.Split(r.Context(), actor(r), id, allocations)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SplitResponseDTO{
		Parent:   toArrearDTO(parent),
		Children: toArrearDTOs(children),
	})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListPendingArrears returns the employee's settleable arrears oldest first.
func (h *Handler) ListPendingArrears(w http.ResponseWriter, r *http.Request) {
	employeeID := core.EmployeeID(chi.URLParam(r, "id"))

	recs, err := h.Ledger.PendingForEmployee(r.Context(), employeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending arrears", err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearDTOs(recs))
}

// SettleForEmployee pushes a budget through the employee's pending arrears,
// oldest first, under one payroll run reference.
func (h *Handler) SettleForEmployee(w http.ResponseWriter, r *http.Request) {
	employeeID := core.EmployeeID(chi.URLParam(r, "id"))

	var req EmployeeSettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PayrollRunRef == "" {
		writeError(w, http.StatusBadRequest, "payroll_run_ref is required", nil)
		return
	}
	if !req.Available.IsPositive() {
		writeError(w, http.StatusBadRequest, "available must be positive", nil)
		return
	}

	settled, err := h.Engine.SettleForEmployee(r.Context(), actor(r), employeeID,
		req.Available, core.PayrollRunID(req.PayrollRunRef))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearDTOs(settled))
}

// =============================================================================
// BONUS HANDLERS
// =============================================================================

// ComputeBonus resolves a tiered bonus from attendance totals.
func (h *Handler) ComputeBonus(w http.ResponseWriter, r *http.Request) {
	var req ComputeBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var periods []attendance.PeriodTotals
	if len(req.LegacyRecords) > 0 {
		for _, lr := range req.LegacyRecords {
			p, err := lr.Canonical()
			if err != nil {
				continue // fail-open: skip unparseable legacy months
			}
			periods = append(periods, p)
		}
	} else {
		for _, dto := range req.Periods {
			p, err := dto.toDomain()
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid period month (use YYYY-MM)", err)
				return
			}
			periods = append(periods, p)
		}
	}

	snapshot := bonus.CompensationSnapshot{
		EmployeeID:  core.EmployeeID(req.Employee.ID),
		GrossSalary: req.Employee.GrossSalary,
	}
	result, err := payroll.ComputeBonus(snapshot, req.Policy, periods)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bonus policy", err)
		return
	}

	writeJSON(w, http.StatusOK, ComputeBonusResponse{
		EmployeeID:  req.Employee.ID,
		Numerator:   result.Stats.Numerator,
		Denominator: result.Stats.Denominator,
		Percentage:  result.Stats.Percentage,
		Amount:      result.Amount,
	})
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// NormalizeTimestamps normalizes a batch of raw punch values.
func (h *Handler) NormalizeTimestamps(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Without an explicit fallback, time-only punches inherit today's date.
	fallback := time.Now()
	if req.FallbackDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.FallbackDate, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid fallback_date (use YYYY-MM-DD)", err)
			return
		}
		fallback = parsed
	}

	results := make([]NormalizedValueDTO, len(req.Values))
	for i, raw := range req.Values {
		t, ok := attendance.NormalizeAt(raw, fallback)
		dto := NormalizedValueDTO{Input: raw, OK: ok}
		if ok {
			formatted := t.Format(time.RFC3339)
			dto.Normalized = &formatted
		}
		results[i] = dto
	}

	writeJSON(w, http.StatusOK, results)
}

// AggregateAttendance sums per-month totals and returns the bonus-eligible
// percentage, without resolving any policy.
func (h *Handler) AggregateAttendance(w http.ResponseWriter, r *http.Request) {
	var req AggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var stats attendance.Stats
	if len(req.LegacyRecords) > 0 {
		stats = attendance.AggregateLegacy(req.LegacyRecords)
	} else {
		periods := make([]attendance.PeriodTotals, 0, len(req.Periods))
		for _, dto := range req.Periods {
			p, err := dto.toDomain()
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid period month (use YYYY-MM)", err)
				return
			}
			periods = append(periods, p)
		}
		stats = attendance.Aggregate(periods)
	}

	writeJSON(w, http.StatusOK, AggregateResponse{
		Numerator:   stats.Numerator,
		Denominator: stats.Denominator,
		Percentage:  stats.Percentage,
	})
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// DepartmentOutstanding totals a department's open arrears for one month.
// GET /api/reports/outstanding?department=X&month=YYYY-MM
func (h *Handler) DepartmentOutstanding(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		writeError(w, http.StatusBadRequest, "department is required", nil)
		return
	}
	month, err := core.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	out, err := h.Engine.DepartmentOutstanding(r.Context(), department, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute outstanding", err)
		return
	}

	writeJSON(w, http.StatusOK, OutstandingDTO{
		Department: out.Department,
		Month:      out.Month.String(),
		Count:      out.Count,
		Total:      out.Total,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, arrears.ErrNotFound):
		writeError(w, http.StatusNotFound, "Arrear not found", err)
	case errors.Is(err, arrears.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
	case errors.Is(err, arrears.ErrOverAllocation):
		writeError(w, http.StatusBadRequest, "Allocations do not reconcile", err)
	case errors.Is(err, arrears.ErrInvalidState):
		writeError(w, http.StatusConflict, "Operation not allowed in current state", err)
	case errors.Is(err, arrears.ErrVersionConflict):
		writeError(w, http.StatusConflict, "Concurrent modification, retry", err)
	case errors.Is(err, arrears.ErrDuplicateID):
		writeError(w, http.StatusConflict, "Duplicate arrear", err)
	case errors.Is(err, arrears.ErrStoreRequired):
		writeError(w, http.StatusNotImplemented, "Operation requires a transactional store", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
