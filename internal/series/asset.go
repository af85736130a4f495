// Package series implements the Time Series Store: per-ticker ordered bar
// sequences with windowed reads and cursor-based iteration for strategy
// lookbacks.
package series

import (
	"sort"
	"time"

	"github.com/atlas-desktop/backtester/pkg/types"
)

// Asset is a named, finite, strictly-increasing-by-date sequence of Bars
// for one (symbol, exchange) pair, with no duplicate dates.
type Asset struct {
	Ticker string
	bars   []types.Bar
}

// NewAsset builds an Asset from bars, sorting and deduplicating by date
// (last write for a given date wins, matching Store.Append's upsert rule).
func NewAsset(ticker string, bars []types.Bar) *Asset {
	a := &Asset{Ticker: ticker}
	a.upsert(bars)
	return a
}

func (a *Asset) upsert(bars []types.Bar) {
	byDate := make(map[string]types.Bar, len(a.bars)+len(bars))
	for _, b := range a.bars {
		byDate[b.DateKey()] = b
	}
	for _, b := range bars {
		byDate[b.DateKey()] = b
	}
	merged := make([]types.Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	a.bars = merged
}

// Len returns the number of bars held.
func (a *Asset) Len() int { return len(a.bars) }

// Bars returns the full ordered bar slice. Callers must not mutate it.
func (a *Asset) Bars() []types.Bar { return a.bars }

// LatestOnOrBefore returns the last bar with Date <= date, or false if none.
func (a *Asset) LatestOnOrBefore(date time.Time) (types.Bar, bool) {
	idx := sort.Search(len(a.bars), func(i int) bool { return a.bars[i].Date.After(date) })
	if idx == 0 {
		return types.Bar{}, false
	}
	return a.bars[idx-1], true
}

// BarOn returns the bar exactly on date, if present.
func (a *Asset) BarOn(date time.Time) (types.Bar, bool) {
	idx := sort.Search(len(a.bars), func(i int) bool { return !a.bars[i].Date.Before(date) })
	if idx < len(a.bars) && a.bars[idx].Date.Equal(date) {
		return a.bars[idx], true
	}
	return types.Bar{}, false
}

// Cursor is a position within an Asset's bar sequence, used to bound
// lookback reads without re-scanning the whole asset on every bar.
type Cursor struct {
	asset *Asset
	index int // index of the bar at-or-before the cursor date, or -1
}

// CursorAt returns a Cursor positioned at the bar on-or-before date.
func (a *Asset) CursorAt(date time.Time) Cursor {
	idx := sort.Search(len(a.bars), func(i int) bool { return a.bars[i].Date.After(date) })
	return Cursor{asset: a, index: idx - 1}
}

// PrefixBefore returns at most n bars strictly before the cursor, oldest
// first — the window a strategy's indicator lookback reads.
func (c Cursor) PrefixBefore(n int) []types.Bar {
	if c.index < 0 {
		return nil
	}
	// bars strictly before the cursor bar itself: indices [0, c.index)
	end := c.index
	start := end - n
	if start < 0 {
		start = 0
	}
	out := make([]types.Bar, end-start)
	copy(out, c.asset.bars[start:end])
	return out
}

// Current returns the bar the cursor sits on, if any.
func (c Cursor) Current() (types.Bar, bool) {
	if c.index < 0 || c.index >= len(c.asset.bars) {
		return types.Bar{}, false
	}
	return c.asset.bars[c.index], true
}

// Depth returns the number of bars available strictly before the cursor —
// used to check getMaxLookbackPeriod() satisfaction without materializing
// the slice.
func (c Cursor) Depth() int {
	if c.index < 0 {
		return 0
	}
	return c.index
}
