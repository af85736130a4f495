// Package ports declares the narrow persistence interfaces the core
// depends on; concrete implementations (the in-memory reference
// implementation in ports/memory and its JSON-file wrapper in
// ports/jsonfile) are dependency-injected at the
// composition root rather than acquired as package-level singletons.
package ports

import (
	"time"

	"github.com/atlas-desktop/backtester/pkg/types"
)

// TickerRepo is CRUD on tickers plus the enabled-tickers query the job
// dispatcher uses to decide what to update.
type TickerRepo interface {
	Create(ticker types.Ticker) (types.Ticker, error)
	Get(id int64) (types.Ticker, error)
	GetBySymbol(symbol, exchange string) (types.Ticker, error)
	Update(ticker types.Ticker) error
	Delete(id int64) error // cascades through quote and audit records
	GetEnabledTickers() ([]types.Ticker, error)
	Validate(ticker types.Ticker) error
}

// QuoteRepo is the bar storage port; callers read windows from it and
// load them into the in-memory Time Series Store.
type QuoteRepo interface {
	BatchUpsert(ticker string, bars []types.Bar) error
	GetWindow(ticker string, from, to time.Time) ([]types.Bar, error)
	GetDateRange(ticker string) (from, to time.Time, err error)
	Delete(ticker string) error
}

// RunRepo persists backtest Run records.
type RunRepo interface {
	Create(run types.RunRecord) (types.RunRecord, error)
	Get(id string) (types.RunRecord, error)
	UpdateStatus(id string, status types.RunStatus) error
	UpdateResults(id string, stats types.Statistics) error
	UpdateError(id string, message string) error
	AppendLog(id string, lines []string) error
	GetByStrategy(strategyName string, limit int) ([]types.RunRecord, error)
}

// MonitorRepo persists Monitor records and their append-only child
// collections: daily snapshots, trades, and metrics.
type MonitorRepo interface {
	Create(monitor types.MonitorRecord) (types.MonitorRecord, error)
	Get(id string) (types.MonitorRecord, error)
	UpdateStatus(id string, status types.MonitorStatus) error
	UpdateLastProcessed(id string, date time.Time) error
	UpdateBacktestProgress(id string, progress float64, status types.RunStatus, errMessage string) error

	SaveSnapshot(snapshot types.DailySnapshot) error
	SaveTrade(monitorID string, trade types.TradeLogEntry) error
	SaveMetrics(metrics types.MonitorMetrics) error

	GetSnapshots(monitorID string, n int) ([]types.DailySnapshot, error)
	GetLatestSnapshot(monitorID string) (types.DailySnapshot, bool, error)
	GetTrades(monitorID string) ([]types.TradeLogEntry, error)
}

// StrategyFactory is the dynamic-strategy-loading port: a typed registry
// of strategy classes populated at process start.
type StrategyFactory interface {
	ListStrategies() []string
	IsValid(name string) bool
	Describe(name string) (types.StrategyDescriptor, bool)
}

// QuoteSource is a named quote-acquisition plugin. Unknown source names
// fail with InvalidInput (UnknownSource).
type QuoteSource interface {
	Fetch(symbol, exchange string, resolution types.Resolution, nBars int) ([]types.Bar, error)
}
