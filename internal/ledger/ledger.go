// Package ledger implements the Position & Ledger component: opening and
// closing positions, mark-to-market, the capital and drawdown series, and
// on-demand statistics over the closed-position log.
package ledger

import (
	"sync"
	"time"

	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger tracks cash, open positions, the closed-position trade log, and
// the capital/drawdown series for one simulation run.
type Ledger struct {
	mu sync.RWMutex

	logger *zap.Logger

	cash           decimal.Decimal
	initialCapital decimal.Decimal

	open   map[string]*types.Position
	closed []types.TradeLogEntry
	// barsInTrade[i] is the bar-count duration of closed[i], parallel slices.
	barsInTrade []int

	capital   []types.CapitalPoint
	drawdowns []types.DrawdownPoint
	peak      decimal.Decimal

	// barIndex tracks the current bar's 0-based index, used to compute
	// averageBarsInTrade; openBarIndex records it per position id.
	barIndex     int
	openBarIndex map[string]int

	// peakUnrealized[id] is the best side-adjusted unrealized profit seen
	// for an open position, updated on every mark-to-market; consumed by
	// ClosePosition to populate the trade log's per-position drawdown.
	peakUnrealized map[string]decimal.Decimal
}

// New creates a Ledger seeded with initialCapital.
func New(logger *zap.Logger, initialCapital decimal.Decimal) *Ledger {
	return &Ledger{
		logger:         logger,
		cash:           initialCapital,
		initialCapital: initialCapital,
		open:           make(map[string]*types.Position),
		peak:           initialCapital,
		openBarIndex:   make(map[string]int),
		peakUnrealized: make(map[string]decimal.Decimal),
	}
}

// SetBarIndex advances the kernel's bar counter; called once per processed
// date before any open/close calls for that date.
func (l *Ledger) SetBarIndex(i int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.barIndex = i
}

// Cash returns available (unreserved) cash.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// OpenPosition validates and opens a new position, reserving cash equal to
// price*quantity for either side; only Long entries are checked against
// available cash. Returns the created Position.
func (l *Ledger) OpenPosition(side types.Side, ticker string, price, quantity decimal.Decimal, date time.Time, comment string) (types.Position, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return types.Position{}, types.InvalidInput("openPosition: quantity must be > 0, got %s", quantity)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return types.Position{}, types.InvalidInput("openPosition: price must be > 0, got %s", price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	openSize := price.Mul(quantity)
	if side == types.SideLong && openSize.GreaterThan(l.cash) {
		return types.Position{}, types.InvalidInput("openPosition: insufficient cash: need %s, have %s", openSize, l.cash)
	}

	pos := types.Position{
		ID:        uuid.NewString(),
		Ticker:    ticker,
		Side:      side,
		OpenPrice: price,
		OpenSize:  openSize,
		Quantity:  quantity,
		Comment:   comment,
		Status:    types.PositionOpen,
		OpenDate:  date,
	}

	l.cash = l.cash.Sub(openSize)
	l.open[pos.ID] = &pos
	l.openBarIndex[pos.ID] = l.barIndex
	l.peakUnrealized[pos.ID] = decimal.Zero

	return pos, nil
}

// UpdateMarkToMarket refreshes an open position's current size at price,
// without affecting cash.
func (l *Ledger) UpdateMarkToMarket(positionID string, currentPrice decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[positionID]
	if !ok {
		return types.InvalidInput("updateMarkToMarket: unknown position %s", positionID)
	}
	pos.CloseSize = currentPrice.Mul(pos.Quantity)

	unrealized := pos.CloseSize.Sub(pos.OpenSize)
	if pos.Side == types.SideShort {
		unrealized = unrealized.Neg()
	}
	if unrealized.GreaterThan(l.peakUnrealized[positionID]) {
		l.peakUnrealized[positionID] = unrealized
	}
	return nil
}

// ClosePosition closes an open position at price, releasing reserved cash
// plus realized P&L back to available capital. Returns the realized P&L.
func (l *Ledger) ClosePosition(positionID string, price decimal.Decimal, date time.Time) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[positionID]
	if !ok {
		return decimal.Zero, types.InvalidInput("closePosition: unknown position %s", positionID)
	}

	closeSize := price.Mul(pos.Quantity)
	pos.ClosePrice = price
	pos.CloseSize = closeSize
	pos.CloseDate = date
	pos.Status = types.PositionClosed

	profit := pos.Profit()
	l.cash = l.cash.Add(pos.OpenSize).Add(profit)

	// The position's peak mark-to-market equity during its life is its
	// entry size plus the best unrealized profit seen; drawdown is that
	// peak minus the equity it actually closed at.
	peakUnrealized := l.peakUnrealized[pos.ID]
	if profit.GreaterThan(peakUnrealized) {
		peakUnrealized = profit
	}
	peakEquity := pos.OpenSize.Add(peakUnrealized)
	ddValue := peakEquity.Sub(pos.OpenSize.Add(profit))
	if ddValue.LessThan(decimal.Zero) {
		ddValue = decimal.Zero
	}
	ddPercent := decimal.Zero
	if !peakEquity.IsZero() {
		ddPercent = ddValue.Div(peakEquity).Mul(decimal.NewFromInt(100))
	}

	openIdx := l.openBarIndex[pos.ID]
	entry := types.TradeLogEntry{
		Ticker:                  pos.Ticker,
		Side:                    pos.Side,
		OpenTime:                pos.OpenDate,
		CloseTime:               pos.CloseDate,
		OpenPrice:               pos.OpenPrice,
		ClosePrice:              pos.ClosePrice,
		Quantity:                pos.Quantity,
		Profit:                  profit,
		ProfitPercent:           pos.ProfitPercent(),
		BalanceAfter:            l.cash.Add(l.openPositionsValueLocked()),
		PositionDrawdownValue:   ddValue,
		PositionDrawdownPercent: ddPercent,
		Comment:                 pos.Comment,
	}

	l.closed = append(l.closed, entry)
	l.barsInTrade = append(l.barsInTrade, l.barIndex-openIdx)
	delete(l.open, positionID)
	delete(l.openBarIndex, positionID)
	delete(l.peakUnrealized, positionID)

	return profit, nil
}

// CloseAll closes every open position at prices[position ticker].
// Positions whose ticker has no entry in prices stay open.
func (l *Ledger) CloseAll(prices map[string]decimal.Decimal, date time.Time, comment string) error {
	l.mu.RLock()
	ids := make([]string, 0, len(l.open))
	for id := range l.open {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	for _, id := range ids {
		l.mu.RLock()
		pos := l.open[id]
		l.mu.RUnlock()
		if pos == nil {
			continue
		}
		price, ok := prices[pos.Ticker]
		if !ok {
			continue
		}
		pos.Comment = comment
		if _, err := l.ClosePosition(id, price, date); err != nil {
			return err
		}
	}
	return nil
}

// OpenPositions returns a snapshot copy of all currently open positions.
func (l *Ledger) OpenPositions() []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	return out
}

// ClosedTrades returns the full trade log.
func (l *Ledger) ClosedTrades() []types.TradeLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.TradeLogEntry, len(l.closed))
	copy(out, l.closed)
	return out
}

func (l *Ledger) openPositionsValueLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.open {
		size := p.CloseSize
		if size.IsZero() {
			size = p.OpenSize
		}
		total = total.Add(size)
	}
	return total
}

// Equity returns cash + sum of open position sizes at their last
// mark-to-market value.
func (l *Ledger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash.Add(l.openPositionsValueLocked())
}

// SnapshotEquity records (date, equity) into the capital series and
// recomputes peak equity and drawdown.
func (l *Ledger) SnapshotEquity(date time.Time) types.CapitalPoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	equity := l.cash.Add(l.openPositionsValueLocked())
	point := types.CapitalPoint{Date: date, Equity: equity}
	l.capital = append(l.capital, point)

	if equity.GreaterThan(l.peak) {
		l.peak = equity
	}
	dd := l.peak.Sub(equity)
	pct := decimal.Zero
	if !l.peak.IsZero() {
		pct = dd.Div(l.peak).Mul(decimal.NewFromInt(100))
	}
	l.drawdowns = append(l.drawdowns, types.DrawdownPoint{
		Date:       date,
		Value:      dd,
		Percent:    pct,
		PeakEquity: l.peak,
	})

	return point
}

// CapitalSeries returns the recorded equity-by-date series.
func (l *Ledger) CapitalSeries() []types.CapitalPoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.CapitalPoint, len(l.capital))
	copy(out, l.capital)
	return out
}

// DrawdownSeries returns the recorded drawdown-by-date series.
func (l *Ledger) DrawdownSeries() []types.DrawdownPoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.DrawdownPoint, len(l.drawdowns))
	copy(out, l.drawdowns)
	return out
}

// InitialCapital returns the capital the ledger was seeded with.
func (l *Ledger) InitialCapital() decimal.Decimal {
	return l.initialCapital
}

// Peak returns the highest equity SnapshotEquity has recorded so far (or
// the seed/restored value if no snapshot has been taken yet).
func (l *Ledger) Peak() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.peak
}

// Restore replaces the ledger's live state (cash, open positions, peak
// equity) from a previously persisted snapshot, for a monitor resuming a
// forward-test run. The closed-trade log and capital/drawdown series are
// not touched; callers reload those separately if a full history is
// needed. Restored positions are re-opened at the current bar index so
// averageBarsInTrade accumulates correctly from the point of resumption.
func (l *Ledger) Restore(cash decimal.Decimal, positions []types.Position, peak decimal.Decimal, barIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = cash
	l.peak = peak
	l.barIndex = barIndex
	l.open = make(map[string]*types.Position, len(positions))
	l.openBarIndex = make(map[string]int, len(positions))
	l.peakUnrealized = make(map[string]decimal.Decimal, len(positions))
	for i := range positions {
		pos := positions[i]
		l.open[pos.ID] = &pos
		l.openBarIndex[pos.ID] = barIndex
		// The snapshot carries no per-position unrealized-profit history,
		// so a resumed position's peak restarts at its last known
		// mark-to-market, the best information available at resumption.
		unrealized := pos.CloseSize.Sub(pos.OpenSize)
		if pos.Side == types.SideShort {
			unrealized = unrealized.Neg()
		}
		l.peakUnrealized[pos.ID] = unrealized
	}
}

// BarsInTrade returns, parallel to ClosedTrades, each trade's duration in
// bar counts (closeBarIndex - openBarIndex).
func (l *Ledger) BarsInTrade() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int, len(l.barsInTrade))
	copy(out, l.barsInTrade)
	return out
}
