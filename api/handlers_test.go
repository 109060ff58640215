package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakethdamerla/li-hrms-sub010/api"
	"github.com/sakethdamerla/li-hrms-sub010/arrears"
	"github.com/sakethdamerla/li-hrms-sub010/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := api.NewHandler(arrears.NewLedger(memory.New()))
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "hr-admin")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded) //nolint:errcheck
	return resp, decoded
}

func createArrear(t *testing.T, srv *httptest.Server, amount string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/arrears", map[string]any{
		"employee_id":  "emp-1",
		"department":   "engineering",
		"start_month":  "2025-01",
		"end_month":    "2025-03",
		"total_amount": amount,
		"reason":       "salary revision",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func approveArrear(t *testing.T, srv *httptest.Server, id string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/arrears/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// ARREAR LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_CreateApproveSettle(t *testing.T) {
	srv := newTestServer(t)

	id := createArrear(t, srv, "1000")
	approveArrear(t, srv, id)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/arrears/"+id+"/settle", map[string]any{
		"amount":          "400",
		"payroll_run_ref": "run-jan",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "partially_settled", body["status"])
	assert.Equal(t, "600", body["remaining_amount"])
	assert.Equal(t, "hr-admin", body["created_by"])
}

func TestAPI_CreateValidation(t *testing.T) {
	srv := newTestServer(t)

	// Bad month format
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/arrears", map[string]any{
		"employee_id":  "emp-1",
		"start_month":  "01-2025",
		"end_month":    "2025-03",
		"total_amount": "100",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-positive amount
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/arrears", map[string]any{
		"employee_id":  "emp-1",
		"start_month":  "2025-01",
		"end_month":    "2025-03",
		"total_amount": "0",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_OverdrawSettlement(t *testing.T) {
	srv := newTestServer(t)
	id := createArrear(t, srv, "500")
	approveArrear(t, srv, id)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/arrears/"+id+"/settle", map[string]any{
		"amount":          "700",
		"payroll_run_ref": "run-jan",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "Invalid amount")
}

func TestAPI_SettleBeforeApproval_Conflict(t *testing.T) {
	srv := newTestServer(t)
	id := createArrear(t, srv, "500")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/arrears/"+id+"/settle", map[string]any{
		"amount":          "100",
		"payroll_run_ref": "run-jan",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_UnknownArrear_NotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/arrears/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Split(t *testing.T) {
	srv := newTestServer(t)
	id := createArrear(t, srv, "600")
	approveArrear(t, srv, id)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/arrears/"+id+"/split", map[string]any{
		"allocations": []map[string]any{
			{"amount": "400"},
			{"amount": "200", "start_month": "2025-02", "end_month": "2025-03"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	parent := body["parent"].(map[string]any)
	assert.Equal(t, "split", parent["status"])

	children := body["children"].([]any)
	require.Len(t, children, 2)
	first := children[0].(map[string]any)
	assert.Equal(t, "approved", first["status"])
	assert.Equal(t, id, first["parent_id"])
}

func TestAPI_SplitMisallocation(t *testing.T) {
	srv := newTestServer(t)
	id := createArrear(t, srv, "600")
	approveArrear(t, srv, id)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/arrears/"+id+"/split", map[string]any{
		"allocations": []map[string]any{{"amount": "400"}, {"amount": "300"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// EMPLOYEE VIEWS
// =============================================================================

func TestAPI_PendingAndBudgetedSettle(t *testing.T) {
	srv := newTestServer(t)

	a := createArrear(t, srv, "300")
	approveArrear(t, srv, a)
	b := createArrear(t, srv, "500")
	approveArrear(t, srv, b)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/employees/emp-1/arrears/pending", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pending []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	assert.Len(t, pending, 2)

	settleResp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/employees/emp-1/arrears/settle", map[string]any{
		"available":       "450",
		"payroll_run_ref": "run-march",
	})
	require.Equal(t, http.StatusOK, settleResp.StatusCode)
}

// =============================================================================
// LISTING AND FILTERS
// =============================================================================

func TestAPI_ListWithFilters(t *testing.T) {
	srv := newTestServer(t)
	id := createArrear(t, srv, "600")
	approveArrear(t, srv, id)

	req, err := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/api/arrears?department=engineering&status=approved&covering=2025-02", srv.URL), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0]["id"])
}

// =============================================================================
// BONUS AND ATTENDANCE ENDPOINTS
// =============================================================================

func TestAPI_ComputeBonus(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bonus/compute", map[string]any{
		"employee": map[string]any{"id": "emp-1", "gross_salary": "50000"},
		"policy": map[string]any{
			"salaryComponent": "gross_salary",
			"tiers": []map[string]any{
				{"minPercentage": "70", "maxPercentage": "100", "bonusPercentage": "20"},
			},
		},
		"periods": []map[string]any{
			{"month": "2025-01", "present": "20"},
			{"month": "2025-02", "present": "10", "absent": "10"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "75", body["percentage"])
	assert.Equal(t, "10000", body["amount"])
}

func TestAPI_ComputeBonus_LegacyRecords(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bonus/compute", map[string]any{
		"employee": map[string]any{"id": "emp-1", "gross_salary": "1000"},
		"policy": map[string]any{
			"salaryComponent": "gross_salary",
			"tiers": []map[string]any{
				{"minPercentage": "0", "maxPercentage": "100", "bonusPercentage": "10"},
			},
		},
		"legacy_records": []map[string]any{
			{"month": "2025-01", "totalPresentDays": "18", "totalODDays": "2"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", body["percentage"])
	assert.Equal(t, "100", body["amount"])
}

func TestAPI_AggregateAttendance(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/attendance/aggregate", map[string]any{
		"periods": []map[string]any{
			{"month": "2025-01", "present": "20"},
			{"month": "2025-02", "present": "10", "absent": "10"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "30", body["numerator"])
	assert.Equal(t, "40", body["denominator"])
	assert.Equal(t, "75", body["percentage"])
}

func TestAPI_NormalizeTimestamps(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/attendance/normalize",
		bytes.NewBufferString(`{"values": ["2026-01-07 21:00", "05:00", "garbage"], "fallback_date": "2026-01-07"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var results []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 3)

	assert.Equal(t, true, results[0]["ok"])
	assert.Contains(t, results[0]["normalized"], "2026-01-07T21:00:00")

	// Time-only punch inherits the fallback date, same day.
	assert.Equal(t, true, results[1]["ok"])
	assert.Contains(t, results[1]["normalized"], "2026-01-07T05:00:00")

	assert.Equal(t, false, results[2]["ok"])
	assert.Nil(t, results[2]["normalized"])
}

func TestAPI_NormalizeTimestamps_DefaultFallbackIsToday(t *testing.T) {
	// GIVEN: A time-only punch and no fallback_date in the request
	// THEN: The punch inherits the current date, not a zero date

	srv := newTestServer(t)

	before := time.Now()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/attendance/normalize",
		bytes.NewBufferString(`{"values": ["21:03"]}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	after := time.Now()

	var results []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	require.Equal(t, true, results[0]["ok"])

	normalized, err := time.ParseInLocation(time.RFC3339, results[0]["normalized"].(string), time.Local)
	require.NoError(t, err)
	assert.Equal(t, 21, normalized.Hour())
	assert.Equal(t, 3, normalized.Minute())

	// The date comes from "now"; allow for a run spanning midnight.
	day := normalized.Format("2006-01-02")
	assert.Contains(t, []string{before.Format("2006-01-02"), after.Format("2006-01-02")}, day)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestAPI_DepartmentOutstanding(t *testing.T) {
	srv := newTestServer(t)
	id := createArrear(t, srv, "600")
	approveArrear(t, srv, id)

	req, err := http.NewRequest(http.MethodGet,
		srv.URL+"/api/reports/outstanding?department=engineering&month=2025-02", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, "600", out["total"])
}
