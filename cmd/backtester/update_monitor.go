package main

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/backtester/internal/dispatch"
	"github.com/atlas-desktop/backtester/internal/monitor"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/spf13/cobra"
)

var updateMonitorCmd = &cobra.Command{
	Use:   "update-monitor",
	Short: "Advance a monitor one bar (Phase B)",
	RunE:  runUpdateMonitor,
}

func init() {
	f := updateMonitorCmd.Flags()
	f.String("monitor-id", "", "monitor to advance (required)")
	f.String("date", "", "date to advance to, YYYY-MM-DD (default: today)")
}

func runUpdateMonitor(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	monitorID, _ := f.GetString("monitor-id")
	dateStr, _ := f.GetString("date")
	if monitorID == "" {
		return fail(exitPartialFailure, fmt.Errorf("update-monitor: --monitor-id is required"))
	}
	date := time.Now()
	if dateStr != "" {
		var err error
		date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fail(exitPartialFailure, fmt.Errorf("invalid --date: %w", err))
		}
	}

	a, err := newApp()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	lock, err := dispatch.AcquireLock(a.cfg.VarDir, dispatch.JobUpdateMonitor)
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}
	defer lock.Release()

	rec, err := a.repos.Monitors.Get(monitorID)
	if err != nil {
		return fail(exitPartialFailure, err)
	}

	store := series.NewStore(a.logger)
	for _, ticker := range rec.Tickers {
		bars, err := a.repos.Quotes.GetWindow(ticker, time.Time{}, date)
		if err != nil {
			return fail(exitPartialFailure, err)
		}
		store.Append(ticker, bars)
	}

	machine := monitor.New(a.logger, a.repos.Monitors, a.registry, store)
	outcome, err := machine.Advance(context.Background(), monitorID, date)
	if err != nil {
		if saveErr := a.save(); saveErr != nil {
			return fail(exitFatalOrLocked, saveErr)
		}
		return fail(exitPartialFailure, err)
	}

	if err := a.save(); err != nil {
		return fail(exitFatalOrLocked, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "monitor %s: advanced to %s (%s)\n", monitorID, date.Format("2006-01-02"), outcome)
	return nil
}
