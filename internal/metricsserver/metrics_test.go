package metricsserver_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/backtester/internal/metricsserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordHealthCheckAccumulatesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metricsserver.NewMetrics(reg)

	m.RecordHealthCheck(time.Now(), 2, 1)
	m.RecordHealthCheck(time.Now(), 1, 0)

	require.Equal(t, 3.0, testutil.ToFloat64(m.StalePendingTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TimedOutRunning))
}

func TestNewMetricsRegistersAllSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	metricsserver.NewMetrics(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 5)
}
