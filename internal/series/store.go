package series

import (
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/backtester/pkg/types"
	"go.uber.org/zap"
)

// Store holds per-ticker ordered bar sequences in memory only; callers
// load bars into it from a ports.QuoteRepo with Append. Reads are
// snapshot-consistent within a single call.
type Store struct {
	mu     sync.RWMutex
	logger *zap.Logger
	assets map[string]*Asset
}

// NewStore creates an empty in-memory time series store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		logger: logger,
		assets: make(map[string]*Asset),
	}
}

// Append adds bars for a ticker. Idempotent on (ticker, date): duplicates
// are silently skipped, newer values for the same date upsert the old one.
func (s *Store) Append(ticker string, bars []types.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[ticker]
	if !ok {
		s.assets[ticker] = NewAsset(ticker, bars)
		return
	}
	asset.upsert(bars)
}

// LoadWindow returns the finite bar sequence for ticker between start and
// end inclusive. Returns an empty Asset — not an error — when no data is
// present; callers translate that into NoData at the perimeter.
func (s *Store) LoadWindow(ticker string, start, end time.Time) *Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[ticker]
	if !ok {
		return NewAsset(ticker, nil)
	}

	var windowed []types.Bar
	for _, b := range asset.bars {
		if (b.Date.Equal(start) || b.Date.After(start)) && (b.Date.Equal(end) || b.Date.Before(end)) {
			windowed = append(windowed, b)
		}
	}
	return NewAsset(ticker, windowed)
}

// LatestOnOrBefore returns the last bar on or before date for ticker.
func (s *Store) LatestOnOrBefore(ticker string, date time.Time) (types.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[ticker]
	if !ok {
		return types.Bar{}, false
	}
	return asset.LatestOnOrBefore(date)
}

// CursorAt returns a cursor into ticker's asset positioned at date. If the
// ticker has no data, the returned Asset is empty and the cursor trivially
// has zero depth.
func (s *Store) CursorAt(ticker string, date time.Time) Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[ticker]
	if !ok {
		asset = NewAsset(ticker, nil)
	}
	return asset.CursorAt(date)
}

// Asset returns the full in-memory asset for ticker, or an empty one.
func (s *Store) Asset(ticker string) *Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[ticker]
	if !ok {
		return NewAsset(ticker, nil)
	}
	return asset
}

// UnionDates returns the ordered union of bar dates across tickers within
// [start, end], the sequence the Simulation Kernel steps over.
func (s *Store) UnionDates(tickers []string, start, end time.Time) []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]time.Time)
	for _, ticker := range tickers {
		asset, ok := s.assets[ticker]
		if !ok {
			continue
		}
		for _, b := range asset.bars {
			if b.Date.Before(start) || b.Date.After(end) {
				continue
			}
			seen[b.Date.UnixNano()] = b.Date
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
