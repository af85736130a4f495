package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// PositionStatus is the lifecycle state of a Position. A position is
// created Open and transitions once to Closed; reopening is forbidden.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is one open-or-closed directional holding in a ticker.
type Position struct {
	ID         string          `json:"id"`
	Ticker     string          `json:"ticker"`
	Side       Side            `json:"side"`
	OpenPrice  decimal.Decimal `json:"openPrice"`
	OpenSize   decimal.Decimal `json:"openSize"`
	Quantity   decimal.Decimal `json:"quantity"`
	Comment    string          `json:"comment"`
	Status     PositionStatus  `json:"status"`
	ClosePrice decimal.Decimal `json:"closePrice,omitempty"`
	CloseSize  decimal.Decimal `json:"closeSize,omitempty"`
	OpenDate   time.Time       `json:"openDate"`
	CloseDate  time.Time       `json:"closeDate,omitempty"`
}

// ProfitPercent is closeSize/openSize*100-100, sign-flipped for Short
// positions, matching Profit.
func (p Position) ProfitPercent() decimal.Decimal {
	if p.OpenSize.IsZero() {
		return decimal.Zero
	}
	pct := p.CloseSize.Div(p.OpenSize).Mul(decimal.NewFromInt(100)).Sub(decimal.NewFromInt(100))
	if p.Side == SideShort {
		return pct.Neg()
	}
	return pct
}

// Profit is the absolute realized P&L: closeSize-openSize, sign-flipped for
// Short positions (whose "size" shrinks when price falls in the trader's
// favor).
func (p Position) Profit() decimal.Decimal {
	diff := p.CloseSize.Sub(p.OpenSize)
	if p.Side == SideShort {
		return diff.Neg()
	}
	return diff
}

// TradeLogEntry is the ledger view of a closed position.
type TradeLogEntry struct {
	Ticker                  string          `json:"ticker"`
	Side                    Side            `json:"side"`
	OpenTime                time.Time       `json:"openTime"`
	CloseTime               time.Time       `json:"closeTime"`
	OpenPrice               decimal.Decimal `json:"openPrice"`
	ClosePrice              decimal.Decimal `json:"closePrice"`
	Quantity                decimal.Decimal `json:"quantity"`
	Profit                  decimal.Decimal `json:"profit"`
	ProfitPercent           decimal.Decimal `json:"profitPercent"`
	BalanceAfter            decimal.Decimal `json:"balanceAfter"`
	PositionDrawdownValue   decimal.Decimal `json:"positionDrawdownValue"`
	PositionDrawdownPercent decimal.Decimal `json:"positionDrawdownPercent"`
	Comment                 string          `json:"comment"`
}

// CapitalPoint is one (date, equity) sample of the capital series.
type CapitalPoint struct {
	Date   time.Time       `json:"date"`
	Equity decimal.Decimal `json:"equity"`
}

// DrawdownPoint is one (date, peak-equity minus current-equity) sample.
type DrawdownPoint struct {
	Date       time.Time       `json:"date"`
	Value      decimal.Decimal `json:"value"`
	Percent    decimal.Decimal `json:"percent"`
	PeakEquity decimal.Decimal `json:"peakEquity"`
}

// Statistics are the on-demand aggregates computed over a closed-position
// log plus the capital series.
type Statistics struct {
	NetProfit              decimal.Decimal `json:"netProfit"`
	NetProfitPercent       decimal.Decimal `json:"netProfitPercent"`
	GrossProfit            decimal.Decimal `json:"grossProfit"`
	GrossLoss              decimal.Decimal `json:"grossLoss"`
	GrossProfitLong        decimal.Decimal `json:"grossProfitLong"`
	GrossLossLong          decimal.Decimal `json:"grossLossLong"`
	GrossProfitShort       decimal.Decimal `json:"grossProfitShort"`
	GrossLossShort         decimal.Decimal `json:"grossLossShort"`
	TotalTransactions      int             `json:"totalTransactions"`
	ProfitableTransactions int             `json:"profitableTransactions"`
	LosingTransactions     int             `json:"losingTransactions"`
	BreakEvenTransactions  int             `json:"breakEvenTransactions"`
	ProfitFactor           decimal.Decimal `json:"profitFactor"`
	AverageProfit          decimal.Decimal `json:"averageProfit"`
	AverageWin             decimal.Decimal `json:"averageWin"`
	AverageLoss            decimal.Decimal `json:"averageLoss"`
	LargestWin             decimal.Decimal `json:"largestWin"`
	LargestLoss            decimal.Decimal `json:"largestLoss"`
	AverageBarsInTrade     decimal.Decimal `json:"averageBarsInTrade"`
	MaxConsecutiveWins     int             `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses   int             `json:"maxConsecutiveLosses"`
	MaxDrawdownValue       decimal.Decimal `json:"maxDrawdownValue"`
	MaxDrawdownPercent     decimal.Decimal `json:"maxDrawdownPercent"`
	WinRate                decimal.Decimal `json:"winRate"`
}

// ProfitFactorSentinel is returned in place of an unrepresentable infinity
// when grossLoss=0 and grossProfit>0 — a large finite decimal rather than
// NaN/Inf, kept consistent across in-process reporting and JSON output.
var ProfitFactorSentinel = decimal.New(1, 9) // 1e9
