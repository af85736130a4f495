package ledger

import (
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
)

// Statistics computes the on-demand aggregate statistics over the
// closed-position log and capital series, per the break-even-exclusion and
// profit-factor-sentinel policy decided for this engine.
func (l *Ledger) Statistics() types.Statistics {
	trades := l.ClosedTrades()
	barsInTrade := l.BarsInTrade()
	drawdowns := l.DrawdownSeries()

	stats := types.Statistics{}

	var grossProfit, grossLoss decimal.Decimal
	var grossProfitLong, grossLossLong, grossProfitShort, grossLossShort decimal.Decimal
	var profitable, losing, breakEven int
	var sumProfit, sumWin, sumLoss decimal.Decimal
	largestWin, largestLoss := decimal.Zero, decimal.Zero

	var curWinStreak, curLossStreak, maxWinStreak, maxLossStreak int

	for _, t := range trades {
		sumProfit = sumProfit.Add(t.Profit)

		switch {
		case t.Profit.GreaterThan(decimal.Zero):
			profitable++
			grossProfit = grossProfit.Add(t.Profit)
			sumWin = sumWin.Add(t.Profit)
			if t.Profit.GreaterThan(largestWin) {
				largestWin = t.Profit
			}
			if t.Side == types.SideLong {
				grossProfitLong = grossProfitLong.Add(t.Profit)
			} else {
				grossProfitShort = grossProfitShort.Add(t.Profit)
			}
			curWinStreak++
			curLossStreak = 0
		case t.Profit.LessThan(decimal.Zero):
			losing++
			loss := t.Profit.Abs()
			grossLoss = grossLoss.Add(loss)
			sumLoss = sumLoss.Add(loss)
			if loss.GreaterThan(largestLoss) {
				largestLoss = loss
			}
			if t.Side == types.SideLong {
				grossLossLong = grossLossLong.Add(loss)
			} else {
				grossLossShort = grossLossShort.Add(loss)
			}
			curLossStreak++
			curWinStreak = 0
		default:
			// Break-even trades (profit == 0) are excluded from both the
			// win-rate numerator and denominator.
			breakEven++
			curWinStreak = 0
			curLossStreak = 0
		}

		if curWinStreak > maxWinStreak {
			maxWinStreak = curWinStreak
		}
		if curLossStreak > maxLossStreak {
			maxLossStreak = curLossStreak
		}
	}

	stats.TotalTransactions = len(trades)
	stats.ProfitableTransactions = profitable
	stats.LosingTransactions = losing
	stats.BreakEvenTransactions = breakEven
	stats.GrossProfit = grossProfit
	stats.GrossLoss = grossLoss
	stats.GrossProfitLong = grossProfitLong
	stats.GrossLossLong = grossLossLong
	stats.GrossProfitShort = grossProfitShort
	stats.GrossLossShort = grossLossShort
	stats.LargestWin = largestWin
	stats.LargestLoss = largestLoss
	stats.MaxConsecutiveWins = maxWinStreak
	stats.MaxConsecutiveLosses = maxLossStreak
	stats.NetProfit = sumProfit

	if !l.initialCapital.IsZero() {
		stats.NetProfitPercent = sumProfit.Div(l.initialCapital).Mul(decimal.NewFromInt(100))
	}

	denominator := profitable + losing // break-even excluded, per decided policy
	if denominator > 0 {
		stats.WinRate = decimal.NewFromInt(int64(profitable)).Div(decimal.NewFromInt(int64(denominator))).Mul(decimal.NewFromInt(100))
	}

	if len(trades) > 0 {
		stats.AverageProfit = sumProfit.Div(decimal.NewFromInt(int64(len(trades))))
	}
	if profitable > 0 {
		stats.AverageWin = sumWin.Div(decimal.NewFromInt(int64(profitable)))
	}
	if losing > 0 {
		stats.AverageLoss = sumLoss.Div(decimal.NewFromInt(int64(losing)))
	}

	switch {
	case grossLoss.IsZero() && grossProfit.GreaterThan(decimal.Zero):
		stats.ProfitFactor = types.ProfitFactorSentinel
	case grossLoss.IsZero():
		stats.ProfitFactor = decimal.Zero
	default:
		stats.ProfitFactor = grossProfit.Div(grossLoss)
	}

	if len(barsInTrade) > 0 {
		sum := 0
		for _, b := range barsInTrade {
			sum += b
		}
		stats.AverageBarsInTrade = decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(barsInTrade))))
	}

	maxDDValue, maxDDPercent := decimal.Zero, decimal.Zero
	for _, d := range drawdowns {
		if d.Value.GreaterThan(maxDDValue) {
			maxDDValue = d.Value
		}
		if d.Percent.GreaterThan(maxDDPercent) {
			maxDDPercent = d.Percent
		}
	}
	stats.MaxDrawdownValue = maxDDValue
	stats.MaxDrawdownPercent = maxDDPercent

	return stats
}
