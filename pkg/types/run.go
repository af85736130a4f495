package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus is the lifecycle state of a backtest Run record.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// OptimizationResult is one combination's outcome within an optimization
// sweep: the parameter values tried, its statistics, and whether it failed.
type OptimizationResult struct {
	Params     StrategyParams  `json:"params"`
	Statistics *Statistics     `json:"statistics,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RunRecord is one backtest execution, optionally an optimization sweep.
type RunRecord struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	StrategyClass      string              `json:"strategyClass"`
	StrategyParameters StrategyParams      `json:"strategyParameters"`
	Tickers            []string            `json:"tickers"`
	BenchmarkTicker    string              `json:"benchmarkTicker,omitempty"`
	StartDate          time.Time           `json:"startDate"`
	EndDate            time.Time           `json:"endDate"`
	InitialCapital     decimal.Decimal     `json:"initialCapital"`
	IsOptimization     bool                `json:"isOptimization"`
	OptimizationParams []OptimizationParam `json:"optimizationParams,omitempty"`
	Status             RunStatus           `json:"status"`
	CreatedAt          time.Time           `json:"createdAt"`
	StartedAt          *time.Time          `json:"startedAt,omitempty"`
	CompletedAt        *time.Time          `json:"completedAt,omitempty"`
	ExecutionSeconds   *float64            `json:"executionSeconds,omitempty"`
	LogOutput          []string            `json:"logOutput,omitempty"`
	ReportBlob         []byte              `json:"reportBlob,omitempty"`
	ResultMetrics      *Statistics         `json:"resultMetrics,omitempty"`
	OptimizationRuns   []OptimizationResult `json:"optimizationRuns,omitempty"`
	ErrorMessage       string              `json:"errorMessage,omitempty"`
}

// MonitorStatus is the lifecycle state of a Monitor record.
type MonitorStatus string

const (
	MonitorInitializing MonitorStatus = "initializing"
	MonitorActive        MonitorStatus = "active"
	MonitorStopped        MonitorStatus = "stopped"
	MonitorFailed         MonitorStatus = "failed"
)

// MonitorRecord is a strategy in forward-test mode, advanced one bar at a
// time, with all state persisted between invocations.
type MonitorRecord struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	StrategyClass       string          `json:"strategyClass"`
	StrategyParameters  StrategyParams  `json:"strategyParameters"`
	Tickers             []string        `json:"tickers"`
	StartDate           time.Time       `json:"startDate"`
	InitialCapital      decimal.Decimal `json:"initialCapital"`
	Status              MonitorStatus   `json:"status"`
	LastProcessedDate   *time.Time      `json:"lastProcessedDate,omitempty"`
	BacktestProgress    float64         `json:"backtestProgress"`
	BacktestStatus      RunStatus       `json:"backtestStatus"`
	BacktestError       string          `json:"backtestError,omitempty"`
	BacktestCurrentDate *time.Time      `json:"backtestCurrentDate,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// DailySnapshot is one append-only child record of a MonitorRecord: state
// captured at the close of one processed date. (monitorId, date) is unique.
type DailySnapshot struct {
	MonitorID         string            `json:"monitorId"`
	Date              time.Time         `json:"date"`
	Cash              decimal.Decimal   `json:"cash"`
	Equity            decimal.Decimal   `json:"equity"`
	PeakEquity        decimal.Decimal   `json:"peakEquity"`
	OpenPositions     []Position        `json:"openPositions"`
	StrategyVariables StrategyVariables `json:"strategyVariables"`
	CumulativeReturn  decimal.Decimal   `json:"cumulativeReturn"`
	DailyReturn       decimal.Decimal   `json:"dailyReturn"`
}

// AdvanceOutcome is the result of one Monitor.Advance call.
type AdvanceOutcome string

const (
	AdvanceApplied               AdvanceOutcome = "applied"
	AdvanceSkippedAlreadyProcessed AdvanceOutcome = "skipped_already_processed"
	AdvanceSkippedNoQuotes        AdvanceOutcome = "skipped_no_quotes"
)

// MetricKind distinguishes a monitor's backtest-phase metrics from its
// forward (live-advance) metrics.
type MetricKind string

const (
	MetricKindBacktest MetricKind = "backtest"
	MetricKindForward  MetricKind = "forward"
)

// MonitorMetrics is one persisted (kind, statistics) pair for a monitor.
type MonitorMetrics struct {
	MonitorID  string     `json:"monitorId"`
	Kind       MetricKind `json:"kind"`
	Statistics Statistics `json:"statistics"`
	AsOf       time.Time  `json:"asOf"`
}
