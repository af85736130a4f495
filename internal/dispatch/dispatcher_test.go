package dispatch_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/backtester/internal/dispatch"
	"github.com/atlas-desktop/backtester/internal/monitor"
	"github.com/atlas-desktop/backtester/internal/ports/memory"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcquireLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := dispatch.AcquireLock(dir, dispatch.JobUpdateMonitor)
	require.NoError(t, err)

	_, err = dispatch.AcquireLock(dir, dispatch.JobUpdateMonitor)
	require.ErrorIs(t, err, dispatch.ErrLocked)

	require.NoError(t, first.Release())

	second, err := dispatch.AcquireLock(dir, dispatch.JobUpdateMonitor)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquireLockDifferentClassesDoNotConflict(t *testing.T) {
	dir := t.TempDir()

	backtestLock, err := dispatch.AcquireLock(dir, dispatch.JobBacktest)
	require.NoError(t, err)
	defer backtestLock.Release()

	quotesLock, err := dispatch.AcquireLock(dir, dispatch.JobUpdateQuotes)
	require.NoError(t, err)
	defer quotesLock.Release()

	require.FileExists(t, filepath.Join(dir, "backtest.lock"))
	require.FileExists(t, filepath.Join(dir, "update-quotes.lock"))
}

func TestLogBufferFlushesAtThreshold(t *testing.T) {
	var flushed [][]string
	buf := dispatch.NewLogBuffer(100, 3, func(lines []string) error {
		flushed = append(flushed, append([]string(nil), lines...))
		return nil
	})

	for i := 0; i < 7; i++ {
		require.NoError(t, buf.Append("line"))
	}
	require.Len(t, flushed, 2) // two batches of 3 auto-flushed; 1 line still pending

	require.NoError(t, buf.Flush())
	require.Len(t, flushed, 3)
	require.Len(t, flushed[2], 1)
}

func TestLogBufferTailWrapsAround(t *testing.T) {
	buf := dispatch.NewLogBuffer(3, 1000, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, buf.Append(string(rune('a'+i))))
	}
	// ring holds only the last 3 of 5 appended
	require.Equal(t, []string{"c", "d", "e"}, buf.Tail(0))
	require.Equal(t, []string{"d", "e"}, buf.Tail(2))
}

func d(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestRunDailyUpdateAdvancesActiveMonitorsAndReportsPartialFailure(t *testing.T) {
	store := series.NewStore(zap.NewNop())
	price := 100.0
	bars := make([]types.Bar, 0, 10)
	start := d("2024-01-01")
	for i := 0; i < 10; i++ {
		price += 1
		p := decimal.NewFromFloat(price)
		bars = append(bars, types.Bar{Date: start.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p, Volume: 100})
	}
	store.Append("X", bars)

	repo := memory.NewMonitorStore()
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)
	_, err := repo.Create(types.MonitorRecord{
		ID:                 "mon-1",
		StrategyClass:      "momentum",
		StrategyParameters: types.StrategyParams{"period": 3, "threshold": 0.01},
		Tickers:            []string{"X"},
		StartDate:          d("2024-01-01"),
		InitialCapital:     decimal.NewFromInt(10000),
		Status:             types.MonitorInitializing,
	})
	require.NoError(t, err)

	mach := monitor.New(zap.NewNop(), repo, reg, store)
	require.NoError(t, mach.RunInitialBacktest(context.Background(), "mon-1", d("2024-01-07")))

	runRepo := memory.NewRunStore()
	dispatcher := dispatch.New(zap.NewNop(), t.TempDir(), "/bin/true", runRepo)

	exitCode, err := dispatcher.RunDailyUpdate(context.Background(), d("2024-01-08"), dispatch.DailyUpdateOptions{
		SkipQuotes:       true,
		Machine:          mach,
		ActiveMonitorIDs: []string{"mon-1", "mon-missing"},
	})
	require.NoError(t, err)
	require.Equal(t, dispatch.ExitPartialFailure, exitCode) // mon-missing fails to advance

	rec, err := repo.Get("mon-1")
	require.NoError(t, err)
	require.NotNil(t, rec.LastProcessedDate)
	require.Equal(t, d("2024-01-08"), *rec.LastProcessedDate)
}

func TestHealthCheckFailsStaleRunningRecords(t *testing.T) {
	runRepo := memory.NewRunStore()
	started := time.Now().Add(-time.Hour)
	_, err := runRepo.Create(types.RunRecord{ID: "run-1", StrategyClass: "momentum", Status: types.RunRunning, StartedAt: &started})
	require.NoError(t, err)

	dispatcher := dispatch.New(zap.NewNop(), t.TempDir(), "/bin/true", runRepo)
	stalePending, timedOut, err := dispatcher.HealthCheck(time.Now(), []string{"momentum"})
	require.NoError(t, err)
	require.Equal(t, 0, stalePending)
	require.Equal(t, 1, timedOut)

	rec, err := runRepo.Get("run-1")
	require.NoError(t, err)
	require.Equal(t, types.RunFailed, rec.Status)
}
