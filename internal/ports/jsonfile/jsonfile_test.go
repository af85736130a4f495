package jsonfile_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/backtester/internal/ports/jsonfile"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileReturnsEmptyRepos(t *testing.T) {
	r, err := jsonfile.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	tickers, err := r.Tickers.GetEnabledTickers()
	require.NoError(t, err)
	require.Empty(t, tickers)
}

func TestSaveThenOpenRoundTripsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	r, err := jsonfile.Open(path)
	require.NoError(t, err)

	_, err = r.Tickers.Create(types.Ticker{Symbol: "AAPL", Exchange: "NASDAQ", Enabled: true})
	require.NoError(t, err)

	_, err = r.Runs.Create(types.RunRecord{ID: "run-1", StrategyClass: "momentum", Status: types.RunCompleted})
	require.NoError(t, err)

	_, err = r.Monitors.Create(types.MonitorRecord{
		ID:             "mon-1",
		StrategyClass:  "momentum",
		InitialCapital: decimal.NewFromInt(10000),
		Status:         types.MonitorActive,
	})
	require.NoError(t, err)
	require.NoError(t, r.Monitors.SaveSnapshot(types.DailySnapshot{
		MonitorID: "mon-1",
		Date:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Cash:      decimal.NewFromInt(10000),
		Equity:    decimal.NewFromInt(10000),
	}))

	require.NoError(t, r.Save())

	reloaded, err := jsonfile.Open(path)
	require.NoError(t, err)

	tickers, err := reloaded.Tickers.GetEnabledTickers()
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	require.Equal(t, "AAPL", tickers[0].Symbol)

	run, err := reloaded.Runs.Get("run-1")
	require.NoError(t, err)
	require.Equal(t, types.RunCompleted, run.Status)

	snaps, err := reloaded.Monitors.GetSnapshots("mon-1", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestNextTickerIDContinuesAfterReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	r, err := jsonfile.Open(path)
	require.NoError(t, err)
	first, err := r.Tickers.Create(types.Ticker{Symbol: "AAPL", Exchange: "NASDAQ"})
	require.NoError(t, err)
	require.NoError(t, r.Save())

	reloaded, err := jsonfile.Open(path)
	require.NoError(t, err)
	second, err := reloaded.Tickers.Create(types.Ticker{Symbol: "MSFT", Exchange: "NASDAQ"})
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)
}
