package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shiftforge/escrow-payout-service/internal/adapters/gateway"
	"github.com/shiftforge/escrow-payout-service/internal/adapters/memory"
	"github.com/shiftforge/escrow-payout-service/internal/application"
	"github.com/shiftforge/escrow-payout-service/internal/contracts"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	repos := memory.NewRepositories()
	assignments := memory.NewAssignmentStore()
	assignments.Seed(ports.Assignment{
		AssignmentID:    "asg-1",
		ShiftID:         "shift-1",
		WorkerID:        "wrk-1",
		BusinessID:      "biz-1",
		HourlyRateMinor: 2000,
		HoursEstimated:  5,
	})
	svc := application.NewService(application.Dependencies{
		Records:     repos.Records,
		Acks:        repos.Acks,
		Ledger:      repos.Ledger,
		Idempotency: repos.Idempotency,
		EventDedup:  repos.EventDedup,
		Outbox:      repos.Outbox,
		Gateway:     gateway.NewMemory(),
		Assignments: assignments,
		Staffing:    memory.NewStaffingRecorder(),
		Profiles:    memory.NewProfileDirectory(),
		SweepLocks:  memory.NewSweepLockStore(),
		WorkerStats: memory.NewWorkerStatsStore(),
	})
	return NewRouter(NewHandler(svc))
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func businessHeaders() map[string]string {
	return map[string]string{
		"Authorization":   "Bearer business:biz-1",
		"X-Request-Id":    "req-1",
		"Idempotency-Key": "idem-1",
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) contracts.ErrorResponse {
	t.Helper()
	var out contracts.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, router, http.MethodGet, path, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMutatingRequestsNeedRequestID(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/escrows/hold",
		contracts.HoldRequest{AssignmentID: "asg-1"},
		map[string]string{"Authorization": "Bearer business:biz-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "missing_request_id", decodeError(t, rec).Error.Code)
}

func TestRequestsNeedBearerToken(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/escrows/hold",
		contracts.HoldRequest{AssignmentID: "asg-1"},
		map[string]string{"X-Request-Id": "req-1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", decodeError(t, rec).Error.Code)
}

func TestHoldEndpointCreatesRecord(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/escrows/hold",
		contracts.HoldRequest{AssignmentID: "asg-1"}, businessHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		Status string `json:"status"`
		Data   struct {
			RecordID    string `json:"record_id"`
			Status      string `json:"status"`
			EscrowMinor int64  `json:"escrow_minor"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "success", out.Status)
	require.NotEmpty(t, out.Data.RecordID)
	require.Equal(t, "in_escrow", out.Data.Status)
	require.Equal(t, int64(10500), out.Data.EscrowMinor)
}

func TestHoldEndpointRequiresIdempotencyKey(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	headers := businessHeaders()
	delete(headers, "Idempotency-Key")
	rec := doRequest(t, router, http.MethodPost, "/v1/escrows/hold",
		contracts.HoldRequest{AssignmentID: "asg-1"}, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "idempotency_key_required", decodeError(t, rec).Error.Code)
}

func TestGetRecordStrangerForbidden(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/escrows/hold",
		contracts.HoldRequest{AssignmentID: "asg-1"}, businessHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)
	var out struct {
		Data struct {
			RecordID string `json:"record_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	rec = doRequest(t, router, http.MethodGet, "/v1/escrows/"+out.Data.RecordID, nil,
		map[string]string{"Authorization": "Bearer user:usr-9"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDisputeFreezeMapsToConflict(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/escrows/hold",
		contracts.HoldRequest{AssignmentID: "asg-1"}, businessHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)
	var out struct {
		Data struct {
			RecordID string `json:"record_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	rec = doRequest(t, router, http.MethodPost, "/v1/escrows/"+out.Data.RecordID+"/dispute",
		contracts.OpenDisputeRequest{Reason: "hours contested"},
		map[string]string{"Authorization": "Bearer worker:wrk-1", "X-Request-Id": "req-2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/escrows/"+out.Data.RecordID+"/release",
		contracts.ReleaseRequest{HoursActual: 4}, businessHeaders())
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "record_disputed", decodeError(t, rec).Error.Code)
}

func TestSweepEndpointsAdminOnly(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	for _, path := range []string{"/v1/sweeps/acknowledgments/run", "/v1/sweeps/payouts/run"} {
		rec := doRequest(t, router, http.MethodPost, path, nil, businessHeaders())
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = doRequest(t, router, http.MethodPost, path, nil,
			map[string]string{"Authorization": "Bearer admin:ops-1", "X-Request-Id": "req-3"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
