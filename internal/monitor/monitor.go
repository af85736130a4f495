// Package monitor implements the Monitor State Machine: the two-phase
// lifecycle (initial backtest, then idempotent one-day-at-a-time forward
// advance) that turns a strategy into a persisted, resumable forward test.
package monitor

import (
	"context"
	"time"

	"github.com/atlas-desktop/backtester/internal/kernel"
	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/internal/ports"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// variablesProvider is satisfied by any strategy built on strategy.Runtime;
// the machine uses it to snapshot and restore the opaque per-strategy
// state blob across invocations.
type variablesProvider interface {
	Variables() types.StrategyVariables
	SetVariables(types.StrategyVariables)
}

// Machine drives monitors through both lifecycle phases. It holds no
// per-monitor state itself: every call re-reads the monitor record and
// its latest snapshot from repo, so a Machine is safe to share across
// concurrent monitors (concurrent calls on the *same* monitor id are the
// job dispatcher's lock file's responsibility, not this type's).
type Machine struct {
	logger   *zap.Logger
	repo     ports.MonitorRepo
	registry *strategy.Registry
	store    *series.Store
}

// New constructs a Machine.
func New(logger *zap.Logger, repo ports.MonitorRepo, registry *strategy.Registry, store *series.Store) *Machine {
	return &Machine{logger: logger, repo: repo, registry: registry, store: store}
}

// RunInitialBacktest executes Phase A for a monitor already created in
// repo (status initializing): a Simulation Kernel run from the monitor's
// startDate through asOf, with a daily snapshot and progress update
// written after every processed date. On completion the monitor
// transitions to active; on failure it is left in backtestStatus=failed.
func (m *Machine) RunInitialBacktest(ctx context.Context, monitorID string, asOf time.Time) error {
	rec, err := m.repo.Get(monitorID)
	if err != nil {
		return err
	}

	led := ledger.New(m.logger, rec.InitialCapital)
	strat, err := m.registry.Instantiate(rec.StrategyClass, m.logger, led, rec.StrategyParameters)
	if err != nil {
		_ = m.repo.UpdateBacktestProgress(monitorID, 0, types.RunFailed, err.Error())
		return err
	}
	_ = m.repo.UpdateBacktestProgress(monitorID, 0, types.RunRunning, "")

	dates := m.store.UnionDates(rec.Tickers, rec.StartDate, asOf)
	total := len(dates)
	dateIndex := make(map[time.Time]int, total)
	for i, d := range dates {
		dateIndex[d] = i
	}
	tradesWritten := 0

	onDate := func(date time.Time) error {
		trades := led.ClosedTrades()
		for _, t := range trades[tradesWritten:] {
			if err := m.repo.SaveTrade(monitorID, t); err != nil {
				return err
			}
		}
		tradesWritten = len(trades)

		snapshot := m.buildSnapshot(monitorID, date, led, strat)
		if err := m.repo.SaveSnapshot(snapshot); err != nil {
			return err
		}

		progress := 100.0
		if total > 0 {
			progress = float64(dateIndex[date]+1) / float64(total) * 100
		}
		return m.repo.UpdateBacktestProgress(monitorID, progress, types.RunRunning, "")
	}

	k := kernel.New(m.logger, 1)
	result, err := k.Run(ctx, kernel.Config{
		Tickers:   rec.Tickers,
		StartDate: rec.StartDate,
		EndDate:   asOf,
		Store:     m.store,
		Ledger:    led,
		Strategy:  strat,
		IsLive:    false,
		OnDate:    onDate,
	})
	if err != nil {
		_ = m.repo.UpdateBacktestProgress(monitorID, 0, types.RunFailed, err.Error())
		return err
	}

	if err := m.repo.SaveMetrics(types.MonitorMetrics{
		MonitorID:  monitorID,
		Kind:       types.MetricKindBacktest,
		Statistics: result.Statistics,
		AsOf:       asOf,
	}); err != nil {
		return err
	}

	lastDate := asOf
	if total > 0 {
		lastDate = dates[total-1]
	}
	if err := m.repo.UpdateLastProcessed(monitorID, lastDate); err != nil {
		return err
	}
	if err := m.repo.UpdateBacktestProgress(monitorID, 100, types.RunCompleted, ""); err != nil {
		return err
	}
	return m.repo.UpdateStatus(monitorID, types.MonitorActive)
}

// Advance executes Phase B for one explicit date: the idempotence guard,
// the quote-availability guard, restoring the strategy and ledger from
// the monitor's latest snapshot, a single-date Simulation Kernel step,
// and persisting the resulting snapshot/trades/metrics. The monitor stays
// active regardless of outcome; a returned error does not flip its
// status — operators stop a monitor manually if a bad day warrants it.
func (m *Machine) Advance(ctx context.Context, monitorID string, date time.Time) (types.AdvanceOutcome, error) {
	rec, err := m.repo.Get(monitorID)
	if err != nil {
		return "", err
	}
	if rec.Status != types.MonitorActive {
		return "", types.InvalidInput("monitor %s is not active (status=%s)", monitorID, rec.Status)
	}

	// 1. Idempotence guard.
	if rec.LastProcessedDate != nil && !rec.LastProcessedDate.Before(date) {
		return types.AdvanceSkippedAlreadyProcessed, nil
	}

	// 2. Quote availability guard.
	for _, ticker := range rec.Tickers {
		if _, ok := m.store.Asset(ticker).BarOn(date); !ok {
			return types.AdvanceSkippedNoQuotes, nil
		}
	}

	// 3. Restore.
	led := ledger.New(m.logger, rec.InitialCapital)
	strat, err := m.registry.Instantiate(rec.StrategyClass, m.logger, led, rec.StrategyParameters)
	if err != nil {
		return "", err
	}

	snapshot, ok, err := m.repo.GetLatestSnapshot(monitorID)
	if err != nil {
		return "", err
	}
	if ok {
		// snapshot.PeakEquity carries the true historical peak equity since
		// monitor inception; snapshots written before this field existed
		// default to zero, in which case the best available approximation
		// is the snapshot's own equity (never above the true peak, at
		// worst flattening one day's drawdown rather than resetting it
		// below the current balance).
		peak := snapshot.PeakEquity
		if peak.IsZero() {
			peak = snapshot.Equity
		}
		led.Restore(snapshot.Cash, snapshot.OpenPositions, peak, 0)
		if vp, isVP := strat.(variablesProvider); isVP {
			vp.SetVariables(snapshot.StrategyVariables)
		}
	}

	// 4. & 5. One windowed kernel step at exactly `date`; lookback
	// satisfaction is computed against the asset's full history, so
	// restricting the window to a single date does not break it.
	k := kernel.New(m.logger, 1)
	result, err := k.Run(ctx, kernel.Config{
		Tickers:   rec.Tickers,
		StartDate: date,
		EndDate:   date,
		Store:     m.store,
		Ledger:    led,
		Strategy:  strat,
		IsLive:    true,
	})
	if err != nil {
		m.logger.Error("monitor advance failed; monitor remains active", zap.String("monitor", monitorID), zap.Error(err))
		return "", err
	}

	newSnapshot := m.buildSnapshot(monitorID, date, led, strat)
	if ok && !snapshot.Equity.IsZero() {
		// The fresh ledger's capital series holds only this date, so the
		// daily return is taken against the previous snapshot's equity.
		newSnapshot.DailyReturn = newSnapshot.Equity.Sub(snapshot.Equity).Div(snapshot.Equity).Mul(decimal.NewFromInt(100))
	}
	if err := m.repo.SaveSnapshot(newSnapshot); err != nil {
		return "", err
	}
	for _, t := range led.ClosedTrades() {
		if err := m.repo.SaveTrade(monitorID, t); err != nil {
			return "", err
		}
	}
	if err := m.repo.SaveMetrics(types.MonitorMetrics{
		MonitorID:  monitorID,
		Kind:       types.MetricKindForward,
		Statistics: result.Statistics,
		AsOf:       date,
	}); err != nil {
		return "", err
	}
	if err := m.repo.UpdateLastProcessed(monitorID, date); err != nil {
		return "", err
	}

	return types.AdvanceApplied, nil
}

// buildSnapshot captures the daily-snapshot invariant: equity, cash, open
// positions, opaque strategy variables, the cumulative return relative to
// the monitor's initial capital, and the daily return relative to the
// previous point of the ledger's capital series.
func (m *Machine) buildSnapshot(monitorID string, date time.Time, led *ledger.Ledger, strat strategy.Strategy) types.DailySnapshot {
	var vars types.StrategyVariables
	if vp, ok := strat.(variablesProvider); ok {
		vars = vp.Variables()
	}

	equity := led.Equity()
	cumulative := decimal.Zero
	if initial := led.InitialCapital(); !initial.IsZero() {
		cumulative = equity.Sub(initial).Div(initial).Mul(decimal.NewFromInt(100))
	}

	capital := led.CapitalSeries()
	daily := decimal.Zero
	if n := len(capital); n >= 2 {
		prev := capital[n-2].Equity
		if !prev.IsZero() {
			daily = capital[n-1].Equity.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100))
		}
	}

	return types.DailySnapshot{
		MonitorID:         monitorID,
		Date:              date,
		Cash:              led.Cash(),
		Equity:            equity,
		PeakEquity:        led.Peak(),
		OpenPositions:     led.OpenPositions(),
		StrategyVariables: vars,
		CumulativeReturn:  cumulative,
		DailyReturn:       daily,
	}
}
