package main

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/backtester/internal/monitor"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/spf13/cobra"
)

var monitorBacktestCmd = &cobra.Command{
	Use:   "monitor-backtest <monitor-id>",
	Short: "Run a monitor's initial backtest (Phase A) through today",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorBacktest,
}

func runMonitorBacktest(cmd *cobra.Command, args []string) error {
	monitorID := args[0]

	a, err := newApp()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	rec, err := a.repos.Monitors.Get(monitorID)
	if err != nil {
		return fail(exitPartialFailure, err)
	}

	store := series.NewStore(a.logger)
	asOf := time.Now()
	for _, ticker := range rec.Tickers {
		bars, err := a.repos.Quotes.GetWindow(ticker, time.Time{}, asOf)
		if err != nil {
			return fail(exitPartialFailure, err)
		}
		store.Append(ticker, bars)
	}

	machine := monitor.New(a.logger, a.repos.Monitors, a.registry, store)
	if err := machine.RunInitialBacktest(context.Background(), monitorID, asOf); err != nil {
		if saveErr := a.save(); saveErr != nil {
			return fail(exitFatalOrLocked, saveErr)
		}
		return fail(exitPartialFailure, err)
	}

	if err := a.save(); err != nil {
		return fail(exitFatalOrLocked, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "monitor %s: initial backtest complete through %s\n", monitorID, asOf.Format("2006-01-02"))
	return nil
}
