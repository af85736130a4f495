package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlas-desktop/backtester/internal/httpapi"
	"github.com/atlas-desktop/backtester/internal/ports/memory"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (http.Handler, *memory.RunStore, *memory.MonitorStore) {
	t.Helper()
	runRepo := memory.NewRunStore()
	monitorRepo := memory.NewMonitorStore()
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)

	srv := httpapi.NewServer(zap.NewNop(), "127.0.0.1", 0, runRepo, monitorRepo, reg)
	return srv.Router(), runRepo, monitorRepo
}

func TestHandleHealthReturnsOK(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestHandleListStrategiesReturnsBuiltins(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Strategies []types.StrategyDescriptor `json:"strategies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Strategies)
}

func TestHandleGetRunNotFound(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetMonitorReturnsPersistedRecord(t *testing.T) {
	router, _, monitorRepo := newTestServer(t)

	_, err := monitorRepo.Create(types.MonitorRecord{
		ID:             "mon-1",
		StrategyClass:  "momentum",
		InitialCapital: decimal.NewFromInt(10000),
		Status:         types.MonitorActive,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/monitors/mon-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got types.MonitorRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "mon-1", got.ID)
}
