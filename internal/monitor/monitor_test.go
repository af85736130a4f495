package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/internal/monitor"
	"github.com/atlas-desktop/backtester/internal/ports/memory"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// buyAndHoldStrategy opens one long position, sized at 80% of cash, on the first bar
// it sees and holds it for the rest of the run. It exists only to give
// monitor tests a deterministic, non-flat equity curve without depending
// on a built-in strategy's entry/exit thresholds.
type buyAndHoldStrategy struct {
	*strategy.Runtime
	ticker string
}

func newBuyAndHoldStrategy(ticker string) strategy.Factory {
	return func(logger *zap.Logger, led *ledger.Ledger, overrides types.StrategyParams) (strategy.Strategy, error) {
		rt := strategy.NewRuntime("buy_and_hold", logger, led, types.StrategyParams{}, overrides, 0)
		return &buyAndHoldStrategy{Runtime: rt, ticker: ticker}, nil
	}
}

func (s *buyAndHoldStrategy) OnOpen(ctx *strategy.Context) error {
	return s.DrainPendingForKernel(ctx, ctx.Date)
}

func (s *buyAndHoldStrategy) OnClose(ctx *strategy.Context) error {
	if len(s.CurrentPositions()) > 0 {
		return nil // a monitor resume re-instantiates the strategy, so "already bought" is read off the ledger, not in-memory state
	}
	bar, ok := ctx.Bars[s.ticker]
	if !ok {
		return nil
	}
	// Sized at 80% of cash against today's close, leaving headroom so the
	// deferred execution at tomorrow's open (which may be higher) fills the
	// full quantity rather than being cut down to what cash buys.
	budget := s.Ledger.Cash().Mul(decimal.NewFromFloat(0.8))
	qty := budget.Div(bar.Close)
	if qty.GreaterThan(decimal.Zero) {
		s.Enqueue(types.SideLong, s.ticker, qty, "initial buy")
	}
	return nil
}

func (s *buyAndHoldStrategy) OnStrategyEnd(ctx *strategy.Context) error {
	prices := make(map[string]decimal.Decimal, len(ctx.Bars))
	for ticker, bar := range ctx.Bars {
		prices[ticker] = bar.Close
	}
	return s.CloseAllAt(prices, ctx.Date, "strategy end")
}

func d(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func bar(s string, price float64) types.Bar {
	p := decimal.NewFromFloat(price)
	return types.Bar{Date: d(s), Open: p, High: p, Low: p, Close: p, Volume: 100}
}

func seedMonitorFixture(t *testing.T, nBars int) (*series.Store, *memory.MonitorStore, *strategy.Registry) {
	t.Helper()
	store := series.NewStore(zap.NewNop())
	price := 100.0
	bars := make([]types.Bar, 0, nBars)
	start := d("2024-01-01")
	for i := 0; i < nBars; i++ {
		price += 1
		bars = append(bars, bar(start.AddDate(0, 0, i).Format("2006-01-02"), price))
	}
	store.Append("X", bars)

	repo := memory.NewMonitorStore()
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)
	return store, repo, reg
}

func TestRunInitialBacktestPersistsDenseSnapshotsAndActivates(t *testing.T) {
	store, repo, reg := seedMonitorFixture(t, 30)
	_, err := repo.Create(types.MonitorRecord{
		ID:                 "mon-1",
		StrategyClass:      "momentum",
		StrategyParameters: types.StrategyParams{"period": 5, "threshold": 0.01},
		Tickers:            []string{"X"},
		StartDate:          d("2024-01-01"),
		InitialCapital:     decimal.NewFromInt(10000),
		Status:             types.MonitorInitializing,
	})
	require.NoError(t, err)

	m := monitor.New(zap.NewNop(), repo, reg, store)
	asOf := d("2024-01-01").AddDate(0, 0, 29)
	require.NoError(t, m.RunInitialBacktest(context.Background(), "mon-1", asOf))

	rec, err := repo.Get("mon-1")
	require.NoError(t, err)
	require.Equal(t, types.MonitorActive, rec.Status)
	require.Equal(t, types.RunCompleted, rec.BacktestStatus)
	require.NotNil(t, rec.LastProcessedDate)

	snaps, err := repo.GetSnapshots("mon-1", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 30)
}

func TestAdvanceIsIdempotentPerDate(t *testing.T) {
	store, repo, reg := seedMonitorFixture(t, 10)
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

	m := monitor.New(zap.NewNop(), repo, reg, store)
	require.NoError(t, m.RunInitialBacktest(context.Background(), "mon-1", d("2024-01-05")))

	outcome, err := m.Advance(context.Background(), "mon-1", d("2024-01-06"))
	require.NoError(t, err)
	require.Equal(t, types.AdvanceApplied, outcome)

	again, err := m.Advance(context.Background(), "mon-1", d("2024-01-06"))
	require.NoError(t, err)
	require.Equal(t, types.AdvanceSkippedAlreadyProcessed, again)

	snapsAfterFirst, err := repo.GetSnapshots("mon-1", 0)
	require.NoError(t, err)
	countAfterFirst := len(snapsAfterFirst)

	_, err = m.Advance(context.Background(), "mon-1", d("2024-01-06"))
	require.NoError(t, err)
	snapsAfterSecond, err := repo.GetSnapshots("mon-1", 0)
	require.NoError(t, err)
	require.Len(t, snapsAfterSecond, countAfterFirst) // second call wrote nothing new
}

func TestAdvanceSkipsOnMissingQuotes(t *testing.T) {
	store, repo, reg := seedMonitorFixture(t, 5)
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

	m := monitor.New(zap.NewNop(), repo, reg, store)
	require.NoError(t, m.RunInitialBacktest(context.Background(), "mon-1", d("2024-01-05")))

	outcome, err := m.Advance(context.Background(), "mon-1", d("2024-03-01")) // far beyond seeded bars
	require.NoError(t, err)
	require.Equal(t, types.AdvanceSkippedNoQuotes, outcome)
}

func TestAdvanceRejectsNonActiveMonitor(t *testing.T) {
	store, repo, reg := seedMonitorFixture(t, 5)
	_, err := repo.Create(types.MonitorRecord{
		ID:             "mon-1",
		StrategyClass:  "momentum",
		Tickers:        []string{"X"},
		StartDate:      d("2024-01-01"),
		InitialCapital: decimal.NewFromInt(10000),
		Status:         types.MonitorInitializing, // never backtested
	})
	require.NoError(t, err)

	m := monitor.New(zap.NewNop(), repo, reg, store)
	_, err = m.Advance(context.Background(), "mon-1", d("2024-01-03"))
	require.Error(t, err)
}

// TestAdvancePeakEquityPersistsAcrossDays proves that the peak equity a
// snapshot carries is the true historical high since monitor inception,
// not the prior day's closing equity: a monitor that ran up and then
// gave back ground must keep reporting the run-up's peak through every
// subsequent Advance call, not reset its drawdown baseline each day.
func TestAdvancePeakEquityPersistsAcrossDays(t *testing.T) {
	prices := []float64{100, 110, 120, 130, 140, 150, 145, 140, 135, 130, 125, 120, 115, 110, 105}
	store := series.NewStore(zap.NewNop())
	start := d("2024-01-01")
	bars := make([]types.Bar, 0, len(prices))
	for i, p := range prices {
		bars = append(bars, bar(start.AddDate(0, 0, i).Format("2006-01-02"), p))
	}
	store.Append("X", bars)

	repo := memory.NewMonitorStore()
	reg := strategy.NewRegistry()
	reg.Register("buy_and_hold", types.StrategyDescriptor{Name: "buy_and_hold", Lookback: 0}, newBuyAndHoldStrategy("X"))

	_, err := repo.Create(types.MonitorRecord{
		ID:             "mon-peak",
		StrategyClass:  "buy_and_hold",
		Tickers:        []string{"X"},
		StartDate:      start,
		InitialCapital: decimal.NewFromInt(10000),
		Status:         types.MonitorInitializing,
	})
	require.NoError(t, err)

	m := monitor.New(zap.NewNop(), repo, reg, store)
	require.NoError(t, m.RunInitialBacktest(context.Background(), "mon-peak", start.AddDate(0, 0, 9))) // through day 10, price 130: off the day-6 peak of 150

	afterBacktest, ok, err := repo.GetLatestSnapshot("mon-peak")
	require.NoError(t, err)
	require.True(t, ok)
	peakAfterBacktest := afterBacktest.PeakEquity
	require.True(t, peakAfterBacktest.GreaterThan(afterBacktest.Equity), "equity should have pulled back from the peak by day 10")

	for i := 10; i < len(prices); i++ {
		outcome, err := m.Advance(context.Background(), "mon-peak", start.AddDate(0, 0, i))
		require.NoError(t, err)
		require.Equal(t, types.AdvanceApplied, outcome)
	}

	final, ok, err := repo.GetLatestSnapshot("mon-peak")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, final.Equity.LessThan(peakAfterBacktest), "equity should have declined further by day 15")
	require.True(t, final.PeakEquity.Equal(peakAfterBacktest), "peak equity must survive across Advance calls instead of resetting to an intermediate day's equity")
}
