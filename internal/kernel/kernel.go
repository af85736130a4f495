// Package kernel implements the Simulation Kernel: the bar-stepping event
// loop that drives a Strategy between two dates, mediating between
// strategy actions and the Ledger.
package kernel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config is the input to one Simulation Kernel run.
type Config struct {
	Tickers         []string
	StartDate       time.Time
	EndDate         time.Time
	Resolution      types.Resolution
	BenchmarkTicker string
	IsLive          bool

	Store    *series.Store
	Ledger   *ledger.Ledger
	Strategy strategy.Strategy

	// OnDate, if set, is invoked after a date's mark-to-market and equity
	// snapshot are recorded and before the progress update is sent — the
	// hook the monitor state machine uses for per-day snapshot/trade
	// persistence during the Phase A initial backtest.
	OnDate func(date time.Time) error
}

// Progress is sent on the Kernel's progress channel as the bar loop
// advances, for a caller (e.g. the monitor or job dispatcher) to surface.
type Progress struct {
	DateIndex   int
	TotalDates  int
	CurrentDate time.Time
}

// Result is the outcome of a completed Run.
type Result struct {
	Statistics      types.Statistics
	CapitalSeries   []types.CapitalPoint
	DrawdownSeries  []types.DrawdownPoint
	Trades          []types.TradeLogEntry
	BenchmarkSeries []types.CapitalPoint // percent-from-start, forward-filled
	DatesProcessed  int
}

// Kernel drives one bar-stepping simulation. A Kernel instance is not
// reentrant: Run refuses a second concurrent invocation.
type Kernel struct {
	logger *zap.Logger

	running   atomic.Bool
	cancelled atomic.Bool

	progressChan chan *Progress
}

// New creates a Kernel. progressBuffer sizes the progress channel;
// progress updates are dropped (not blocked on) once the buffer is full.
func New(logger *zap.Logger, progressBuffer int) *Kernel {
	return &Kernel{
		logger:       logger,
		progressChan: make(chan *Progress, progressBuffer),
	}
}

// Progress returns the channel progress updates are sent on.
func (k *Kernel) Progress() <-chan *Progress { return k.progressChan }

// Cancel marks the run cancelled; the kernel checks this between dates and
// the current run's context is also checked on every iteration.
func (k *Kernel) Cancel() { k.cancelled.Store(true) }

// Run executes the bar loop for cfg.StartDate..cfg.EndDate. Only
// StrategyFault and PersistenceFault-rooted errors are returned wrapped;
// validation failures return InvalidInput/NoData directly.
func (k *Kernel) Run(ctx context.Context, cfg Config) (*Result, error) {
	if !k.running.CompareAndSwap(false, true) {
		return nil, types.InvalidInput("kernel: run already in progress")
	}
	defer k.running.Store(false)
	k.cancelled.Store(false)

	if cfg.StartDate.After(cfg.EndDate) {
		return nil, types.InvalidInput("invalid window: start %s after end %s", cfg.StartDate, cfg.EndDate)
	}

	dates := cfg.Store.UnionDates(cfg.Tickers, cfg.StartDate, cfg.EndDate)
	if len(dates) == 0 {
		return nil, types.NoData("no bars available for tickers %v in [%s, %s]", cfg.Tickers, cfg.StartDate, cfg.EndDate)
	}

	assets := make(map[string]*series.Asset, len(cfg.Tickers))
	for _, ticker := range cfg.Tickers {
		assets[ticker] = cfg.Store.Asset(ticker)
	}

	lookback := cfg.Strategy.GetMaxLookbackPeriod()

	var lastCtx *strategy.Context
	processed := 0

	for i, date := range dates {
		select {
		case <-ctx.Done():
			return nil, types.PersistenceFault(ctx.Err(), "run cancelled by context")
		default:
		}
		if k.cancelled.Load() {
			k.logger.Info("kernel run cancelled, halting before next date", zap.Time("date", date))
			break
		}

		cursors := make(map[string]series.Cursor, len(cfg.Tickers))
		bars := make(map[string]types.Bar, len(cfg.Tickers))
		satisfied := true

		for _, ticker := range cfg.Tickers {
			cursor := cfg.Store.CursorAt(ticker, date)
			cursors[ticker] = cursor
			if cursor.Depth() < lookback {
				satisfied = false
			}
			if bar, ok := assets[ticker].BarOn(date); ok {
				bars[ticker] = bar
			}
		}

		if !satisfied {
			continue
		}

		stepCtx := &strategy.Context{
			Date:    date,
			IsLive:  cfg.IsLive,
			Assets:  assets,
			Cursors: cursors,
			Bars:    bars,
		}
		lastCtx = stepCtx

		cfg.Ledger.SetBarIndex(i)

		if err := invoke(cfg.Strategy.OnOpen, stepCtx); err != nil {
			return nil, types.StrategyFault(err, "onOpen failed at %s", date)
		}
		if err := invoke(cfg.Strategy.OnClose, stepCtx); err != nil {
			return nil, types.StrategyFault(err, "onClose failed at %s", date)
		}

		for _, pos := range cfg.Ledger.OpenPositions() {
			if bar, ok := bars[pos.Ticker]; ok {
				if err := cfg.Ledger.UpdateMarkToMarket(pos.ID, bar.Close); err != nil {
					return nil, types.PersistenceFault(err, "mark-to-market failed at %s", date)
				}
			}
		}

		cfg.Ledger.SnapshotEquity(date)
		processed++

		if cfg.OnDate != nil {
			if err := cfg.OnDate(date); err != nil {
				return nil, types.PersistenceFault(err, "onDate hook failed at %s", date)
			}
		}

		k.sendProgress(&Progress{DateIndex: i + 1, TotalDates: len(dates), CurrentDate: date})
	}

	if lastCtx != nil {
		if err := invoke(cfg.Strategy.OnStrategyEnd, lastCtx); err != nil {
			return nil, types.StrategyFault(err, "onStrategyEnd failed at %s", lastCtx.Date)
		}
	}

	result := &Result{
		Statistics:     cfg.Ledger.Statistics(),
		CapitalSeries:  cfg.Ledger.CapitalSeries(),
		DrawdownSeries: cfg.Ledger.DrawdownSeries(),
		Trades:         cfg.Ledger.ClosedTrades(),
		DatesProcessed: processed,
	}

	if cfg.BenchmarkTicker != "" {
		result.BenchmarkSeries = benchmarkSeries(cfg.Store, cfg.BenchmarkTicker, result.CapitalSeries)
	}

	return result, nil
}

// invoke calls a strategy event method, converting a panic into an error
// so a misbehaving strategy cannot crash the enclosing job.
func invoke(fn func(*strategy.Context) error, ctx *strategy.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (k *Kernel) sendProgress(p *Progress) {
	select {
	case k.progressChan <- p:
	default:
		// buffer full; drop rather than block the bar loop
	}
}

// benchmarkSeries computes a "buy-and-hold from start" percent series for
// benchmarkTicker aligned to capital's dates, explicitly forward-filling
// across differing trading calendars.
func benchmarkSeries(store *series.Store, benchmarkTicker string, capital []types.CapitalPoint) []types.CapitalPoint {
	if len(capital) == 0 {
		return nil
	}
	asset := store.Asset(benchmarkTicker)
	if asset.Len() == 0 {
		return nil
	}

	startBar, ok := asset.LatestOnOrBefore(capital[0].Date)
	if !ok {
		startBar = asset.Bars()[0]
	}
	if startBar.Close.IsZero() {
		return nil
	}

	out := make([]types.CapitalPoint, 0, len(capital))
	for _, cp := range capital {
		bar, ok := asset.LatestOnOrBefore(cp.Date)
		if !ok {
			bar = startBar
		}
		pct := bar.Close.Div(startBar.Close).Mul(decimal.NewFromInt(100))
		out = append(out, types.CapitalPoint{Date: cp.Date, Equity: pct})
	}
	return out
}
