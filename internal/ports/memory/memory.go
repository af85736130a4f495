// Package memory provides in-memory reference implementations of the
// internal/ports interfaces, used directly by tests and, wrapped by
// ports/jsonfile, by every CLI subcommand. They follow the same mutex-guarded-map idiom as internal/series
// and internal/ledger rather than a database driver.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/backtester/internal/ports"
	"github.com/atlas-desktop/backtester/pkg/types"
)

// TickerStore is an in-memory ports.TickerRepo.
type TickerStore struct {
	mu      sync.RWMutex
	tickers map[int64]types.Ticker
	nextID  int64
}

// NewTickerStore creates an empty TickerStore.
func NewTickerStore() *TickerStore {
	return &TickerStore{tickers: make(map[int64]types.Ticker)}
}

var _ ports.TickerRepo = (*TickerStore)(nil)

func (s *TickerStore) Create(ticker types.Ticker) (types.Ticker, error) {
	if err := s.Validate(ticker); err != nil {
		return types.Ticker{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ticker.ID = s.nextID
	ticker.CreatedAt = ticker.UpdatedAt
	s.tickers[ticker.ID] = ticker
	return ticker, nil
}

func (s *TickerStore) Get(id int64) (types.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickers[id]
	if !ok {
		return types.Ticker{}, types.NoData("ticker %d not found", id)
	}
	return t, nil
}

func (s *TickerStore) GetBySymbol(symbol, exchange string) (types.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tickers {
		if t.Symbol == symbol && t.Exchange == exchange {
			return t, nil
		}
	}
	return types.Ticker{}, types.NoData("ticker %s:%s not found", exchange, symbol)
}

func (s *TickerStore) Update(ticker types.Ticker) error {
	if err := s.Validate(ticker); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickers[ticker.ID]; !ok {
		return types.NoData("ticker %d not found", ticker.ID)
	}
	s.tickers[ticker.ID] = ticker
	return nil
}

// Delete removes the ticker record only. This store holds no quotes or
// audit records, so nothing cascades from it.
func (s *TickerStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickers[id]; !ok {
		return types.NoData("ticker %d not found", id)
	}
	delete(s.tickers, id)
	return nil
}

func (s *TickerStore) GetEnabledTickers() ([]types.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Ticker, 0, len(s.tickers))
	for _, t := range s.tickers {
		if t.Enabled {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *TickerStore) Validate(ticker types.Ticker) error {
	if ticker.Symbol == "" {
		return types.InvalidInput("ticker symbol is required")
	}
	if ticker.Exchange == "" {
		return types.InvalidInput("ticker exchange is required")
	}
	return nil
}

// All returns every stored ticker, unordered. Used by jsonfile to persist
// a full snapshot of the store.
func (s *TickerStore) All() []types.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Ticker, 0, len(s.tickers))
	for _, t := range s.tickers {
		out = append(out, t)
	}
	return out
}

// LoadAll replaces the store's contents with tickers, restoring nextID to
// the highest ID seen so newly Created tickers don't collide.
func (s *TickerStore) LoadAll(tickers []types.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers = make(map[int64]types.Ticker, len(tickers))
	for _, t := range tickers {
		s.tickers[t.ID] = t
		if t.ID > s.nextID {
			s.nextID = t.ID
		}
	}
}

// QuoteStore is an in-memory ports.QuoteRepo, keyed by ticker symbol.
type QuoteStore struct {
	mu   sync.RWMutex
	bars map[string][]types.Bar // sorted ascending by Date
}

// NewQuoteStore creates an empty QuoteStore.
func NewQuoteStore() *QuoteStore {
	return &QuoteStore{bars: make(map[string][]types.Bar)}
}

var _ ports.QuoteRepo = (*QuoteStore)(nil)

func (s *QuoteStore) BatchUpsert(ticker string, bars []types.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDate := make(map[string]types.Bar, len(s.bars[ticker])+len(bars))
	for _, b := range s.bars[ticker] {
		byDate[b.DateKey()] = b
	}
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		byDate[b.DateKey()] = b
	}

	merged := make([]types.Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	s.bars[ticker] = merged
	return nil
}

func (s *QuoteStore) GetWindow(ticker string, from, to time.Time) ([]types.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Bar
	for _, b := range s.bars[ticker] {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *QuoteStore) GetDateRange(ticker string) (time.Time, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bars := s.bars[ticker]
	if len(bars) == 0 {
		return time.Time{}, time.Time{}, types.NoData("no quotes stored for %s", ticker)
	}
	return bars[0].Date, bars[len(bars)-1].Date, nil
}

func (s *QuoteStore) Delete(ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bars, ticker)
	return nil
}

// AllBars returns a copy of the entire ticker-to-bars map.
func (s *QuoteStore) AllBars() map[string][]types.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]types.Bar, len(s.bars))
	for k, v := range s.bars {
		cp := make([]types.Bar, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// LoadAll replaces the store's contents with bars.
func (s *QuoteStore) LoadAll(bars map[string][]types.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = make(map[string][]types.Bar, len(bars))
	for k, v := range bars {
		cp := make([]types.Bar, len(v))
		copy(cp, v)
		s.bars[k] = cp
	}
}

// RunStore is an in-memory ports.RunRepo.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]types.RunRecord
}

// NewRunStore creates an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]types.RunRecord)}
}

var _ ports.RunRepo = (*RunStore)(nil)

func (s *RunStore) Create(run types.RunRecord) (types.RunRecord, error) {
	if run.ID == "" {
		return types.RunRecord{}, types.InvalidInput("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return run, nil
}

func (s *RunStore) Get(id string) (types.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return types.RunRecord{}, types.NoData("run %s not found", id)
	}
	return r, nil
}

func (s *RunStore) UpdateStatus(id string, status types.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return types.NoData("run %s not found", id)
	}
	r.Status = status
	s.runs[id] = r
	return nil
}

func (s *RunStore) UpdateResults(id string, stats types.Statistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return types.NoData("run %s not found", id)
	}
	r.ResultMetrics = &stats
	r.Status = types.RunCompleted
	s.runs[id] = r
	return nil
}

func (s *RunStore) UpdateError(id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return types.NoData("run %s not found", id)
	}
	r.ErrorMessage = message
	r.Status = types.RunFailed
	s.runs[id] = r
	return nil
}

func (s *RunStore) AppendLog(id string, lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return types.NoData("run %s not found", id)
	}
	r.LogOutput = append(r.LogOutput, lines...)
	s.runs[id] = r
	return nil
}

func (s *RunStore) GetByStrategy(strategyName string, limit int) ([]types.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.RunRecord
	for _, r := range s.runs {
		if r.StrategyClass == strategyName {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored run record, unordered.
func (s *RunStore) All() []types.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out
}

// LoadAll replaces the store's contents with runs.
func (s *RunStore) LoadAll(runs []types.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]types.RunRecord, len(runs))
	for _, r := range runs {
		s.runs[r.ID] = r
	}
}

// MonitorStore is an in-memory ports.MonitorRepo.
type MonitorStore struct {
	mu        sync.RWMutex
	monitors  map[string]types.MonitorRecord
	snapshots map[string][]types.DailySnapshot // by monitor id, ascending by date
	trades    map[string][]types.TradeLogEntry
	metrics   map[string][]types.MonitorMetrics
}

// NewMonitorStore creates an empty MonitorStore.
func NewMonitorStore() *MonitorStore {
	return &MonitorStore{
		monitors:  make(map[string]types.MonitorRecord),
		snapshots: make(map[string][]types.DailySnapshot),
		trades:    make(map[string][]types.TradeLogEntry),
		metrics:   make(map[string][]types.MonitorMetrics),
	}
}

var _ ports.MonitorRepo = (*MonitorStore)(nil)

func (s *MonitorStore) Create(monitor types.MonitorRecord) (types.MonitorRecord, error) {
	if monitor.ID == "" {
		return types.MonitorRecord{}, types.InvalidInput("monitor id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors[monitor.ID] = monitor
	return monitor, nil
}

func (s *MonitorStore) Get(id string) (types.MonitorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monitors[id]
	if !ok {
		return types.MonitorRecord{}, types.NoData("monitor %s not found", id)
	}
	return m, nil
}

func (s *MonitorStore) UpdateStatus(id string, status types.MonitorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return types.NoData("monitor %s not found", id)
	}
	m.Status = status
	s.monitors[id] = m
	return nil
}

func (s *MonitorStore) UpdateLastProcessed(id string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return types.NoData("monitor %s not found", id)
	}
	d := date
	m.LastProcessedDate = &d
	s.monitors[id] = m
	return nil
}

func (s *MonitorStore) UpdateBacktestProgress(id string, progress float64, status types.RunStatus, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return types.NoData("monitor %s not found", id)
	}
	m.BacktestProgress = progress
	m.BacktestStatus = status
	m.BacktestError = errMessage
	s.monitors[id] = m
	return nil
}

func (s *MonitorStore) SaveSnapshot(snapshot types.DailySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.snapshots[snapshot.MonitorID]
	for i, existing := range list {
		if existing.Date.Equal(snapshot.Date) {
			list[i] = snapshot
			s.snapshots[snapshot.MonitorID] = list
			return nil
		}
	}
	list = append(list, snapshot)
	sort.Slice(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
	s.snapshots[snapshot.MonitorID] = list
	return nil
}

func (s *MonitorStore) SaveTrade(monitorID string, trade types.TradeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[monitorID] = append(s.trades[monitorID], trade)
	return nil
}

func (s *MonitorStore) SaveMetrics(metrics types.MonitorMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[metrics.MonitorID] = append(s.metrics[metrics.MonitorID], metrics)
	return nil
}

func (s *MonitorStore) GetSnapshots(monitorID string, n int) ([]types.DailySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.snapshots[monitorID]
	if n <= 0 || n >= len(list) {
		out := make([]types.DailySnapshot, len(list))
		copy(out, list)
		return out, nil
	}
	out := make([]types.DailySnapshot, n)
	copy(out, list[len(list)-n:])
	return out, nil
}

func (s *MonitorStore) GetLatestSnapshot(monitorID string) (types.DailySnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.snapshots[monitorID]
	if len(list) == 0 {
		return types.DailySnapshot{}, false, nil
	}
	return list[len(list)-1], true, nil
}

func (s *MonitorStore) GetTrades(monitorID string) ([]types.TradeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TradeLogEntry, len(s.trades[monitorID]))
	copy(out, s.trades[monitorID])
	return out, nil
}

// MonitorSnapshotDoc is the full exportable state of a MonitorStore.
type MonitorSnapshotDoc struct {
	Monitors  []types.MonitorRecord                    `json:"monitors"`
	Snapshots map[string][]types.DailySnapshot          `json:"snapshots"`
	Trades    map[string][]types.TradeLogEntry          `json:"trades"`
	Metrics   map[string][]types.MonitorMetrics         `json:"metrics"`
}

// Export returns the store's full state for persistence.
func (s *MonitorStore) Export() MonitorSnapshotDoc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := MonitorSnapshotDoc{
		Snapshots: make(map[string][]types.DailySnapshot, len(s.snapshots)),
		Trades:    make(map[string][]types.TradeLogEntry, len(s.trades)),
		Metrics:   make(map[string][]types.MonitorMetrics, len(s.metrics)),
	}
	for _, m := range s.monitors {
		doc.Monitors = append(doc.Monitors, m)
	}
	for k, v := range s.snapshots {
		doc.Snapshots[k] = append([]types.DailySnapshot(nil), v...)
	}
	for k, v := range s.trades {
		doc.Trades[k] = append([]types.TradeLogEntry(nil), v...)
	}
	for k, v := range s.metrics {
		doc.Metrics[k] = append([]types.MonitorMetrics(nil), v...)
	}
	return doc
}

// Import replaces the store's contents with doc.
func (s *MonitorStore) Import(doc MonitorSnapshotDoc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors = make(map[string]types.MonitorRecord, len(doc.Monitors))
	for _, m := range doc.Monitors {
		s.monitors[m.ID] = m
	}
	s.snapshots = doc.Snapshots
	if s.snapshots == nil {
		s.snapshots = make(map[string][]types.DailySnapshot)
	}
	s.trades = doc.Trades
	if s.trades == nil {
		s.trades = make(map[string][]types.TradeLogEntry)
	}
	s.metrics = doc.Metrics
	if s.metrics == nil {
		s.metrics = make(map[string][]types.MonitorMetrics)
	}
}
