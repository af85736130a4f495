package ledger_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestOpenPositionReservesCash(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))

	pos, err := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(5), date("2024-01-01"), "")
	require.NoError(t, err)
	require.Equal(t, types.PositionOpen, pos.Status)
	require.True(t, l.Cash().Equal(decimal.NewFromInt(500)))
}

func TestOpenPositionInsufficientCash(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(100))

	_, err := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(5), date("2024-01-01"), "")
	require.Error(t, err)
}

func TestClosePositionRealizesProfit(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))

	pos, err := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(10), date("2024-01-01"), "")
	require.NoError(t, err)

	profit, err := l.ClosePosition(pos.ID, decimal.NewFromInt(110), date("2024-01-02"))
	require.NoError(t, err)
	require.True(t, profit.Equal(decimal.NewFromInt(100)))
	// cash back: 0 (reserved was spent) + openSize(1000) + profit(100) = 1100
	require.True(t, l.Cash().Equal(decimal.NewFromInt(1100)))

	trades := l.ClosedTrades()
	require.Len(t, trades, 1)
	require.True(t, trades[0].Profit.Equal(decimal.NewFromInt(100)))
}

func TestLedgerConservationInvariant(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))

	pos, err := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(5), date("2024-01-01"), "")
	require.NoError(t, err)
	require.NoError(t, l.UpdateMarkToMarket(pos.ID, decimal.NewFromInt(120)))

	// equity = cash + open position value
	equity := l.Equity()
	expected := l.Cash().Add(decimal.NewFromInt(120).Mul(decimal.NewFromInt(5)))
	require.True(t, equity.Equal(expected))
}

func TestStatisticsBreakEvenExcludedFromWinRate(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))

	winner, _ := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(1), date("2024-01-01"), "")
	_, err := l.ClosePosition(winner.ID, decimal.NewFromInt(110), date("2024-01-02"))
	require.NoError(t, err)

	flat, _ := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(1), date("2024-01-02"), "")
	_, err = l.ClosePosition(flat.ID, decimal.NewFromInt(100), date("2024-01-03"))
	require.NoError(t, err)

	stats := l.Statistics()
	require.Equal(t, 1, stats.BreakEvenTransactions)
	require.Equal(t, 1, stats.ProfitableTransactions)
	// win rate excludes the break-even trade from the denominator: 1/1 = 100
	require.True(t, stats.WinRate.Equal(decimal.NewFromInt(100)))
}

func TestStatisticsProfitFactorSentinelWhenNoLosses(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))
	pos, _ := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(1), date("2024-01-01"), "")
	_, err := l.ClosePosition(pos.ID, decimal.NewFromInt(110), date("2024-01-02"))
	require.NoError(t, err)

	stats := l.Statistics()
	require.True(t, stats.ProfitFactor.Equal(types.ProfitFactorSentinel))
}

func TestSnapshotEquityTracksDrawdown(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))
	l.SnapshotEquity(date("2024-01-01"))

	pos, _ := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(5), date("2024-01-01"), "")
	require.NoError(t, l.UpdateMarkToMarket(pos.ID, decimal.NewFromInt(80)))
	l.SnapshotEquity(date("2024-01-02"))

	dds := l.DrawdownSeries()
	require.Len(t, dds, 2)
	require.True(t, dds[1].Value.GreaterThan(decimal.Zero))
}

func TestPeakSurvivesAcrossRestore(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))
	pos, _ := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(5), date("2024-01-01"), "")
	require.NoError(t, l.UpdateMarkToMarket(pos.ID, decimal.NewFromInt(140)))
	l.SnapshotEquity(date("2024-01-01"))
	require.True(t, l.Peak().Equal(decimal.NewFromInt(1200))) // 500 cash + 700 mark-to-market

	restored := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))
	restored.Restore(l.Cash(), l.OpenPositions(), l.Peak(), 0)
	require.True(t, restored.Peak().Equal(l.Peak()))
}

func TestClosePositionRecordsPositionDrawdown(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))

	pos, err := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(10), date("2024-01-01"), "")
	require.NoError(t, err)

	// runs up to 120 (peak unrealized +200) before giving it back to 110
	require.NoError(t, l.UpdateMarkToMarket(pos.ID, decimal.NewFromInt(120)))
	_, err = l.ClosePosition(pos.ID, decimal.NewFromInt(110), date("2024-01-02"))
	require.NoError(t, err)

	trades := l.ClosedTrades()
	require.Len(t, trades, 1)
	// peak equity was 1200 (open 1000 + 200 unrealized), closed at 1100: drawdown 100, ~8.33%
	require.True(t, trades[0].PositionDrawdownValue.Equal(decimal.NewFromInt(100)))
	require.True(t, trades[0].PositionDrawdownPercent.GreaterThan(decimal.NewFromInt(8)))
	require.True(t, trades[0].PositionDrawdownPercent.LessThan(decimal.NewFromInt(9)))
}

func TestClosePositionNoDrawdownWhenClosedAtPeak(t *testing.T) {
	l := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))

	pos, err := l.OpenPosition(types.SideLong, "X", decimal.NewFromInt(100), decimal.NewFromInt(10), date("2024-01-01"), "")
	require.NoError(t, err)

	_, err = l.ClosePosition(pos.ID, decimal.NewFromInt(110), date("2024-01-02"))
	require.NoError(t, err)

	trades := l.ClosedTrades()
	require.Len(t, trades, 1)
	require.True(t, trades[0].PositionDrawdownValue.IsZero())
	require.True(t, trades[0].PositionDrawdownPercent.IsZero())
}
