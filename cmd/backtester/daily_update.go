package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/atlas-desktop/backtester/internal/dispatch"
	"github.com/atlas-desktop/backtester/internal/monitor"
	"github.com/atlas-desktop/backtester/internal/quotesource"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/atlas-desktop/backtester/pkg/utils"
	"github.com/spf13/cobra"
)

var dailyUpdateCmd = &cobra.Command{
	Use:   "daily-update",
	Short: "Run the scheduled daily orchestration: update-quotes then update-monitor for every active monitor",
	RunE:  runDailyUpdate,
}

func init() {
	f := dailyUpdateCmd.Flags()
	f.String("date", "", "date to process, YYYY-MM-DD (default: today)")
	f.Bool("skip-quotes", false, "skip the update-quotes phase")
	f.Bool("skip-monitors", false, "skip the update-monitor phase")
}

func runDailyUpdate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	dateStr, _ := f.GetString("date")
	skipQuotes, _ := f.GetBool("skip-quotes")
	skipMonitors, _ := f.GetBool("skip-monitors")

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

	self, err := os.Executable()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}
	d := dispatch.New(a.logger, a.cfg.VarDir, self, a.repos.Runs)

	var activeMonitorIDs []string
	monitorDoc := a.repos.Monitors.Export()
	for _, rec := range monitorDoc.Monitors {
		if rec.Status == types.MonitorActive {
			activeMonitorIDs = append(activeMonitorIDs, rec.ID)
		}
	}

	store := series.NewStore(a.logger)
	for _, rec := range monitorDoc.Monitors {
		for _, ticker := range rec.Tickers {
			bars, err := a.repos.Quotes.GetWindow(ticker, time.Time{}, date)
			if err == nil {
				store.Append(ticker, bars)
			}
		}
	}
	machine := monitor.New(a.logger, a.repos.Monitors, a.registry, store)

	source := quotesource.Unconfigured{Name: "default"}
	updateQuotes := func(ctx context.Context, asOf time.Time) error {
		tickers, err := a.repos.Tickers.GetEnabledTickers()
		if err != nil {
			return err
		}
		failed := 0
		for _, ticker := range tickers {
			bars, err := utils.Retry(utils.DefaultRetryConfig(), func() ([]types.Bar, error) {
				return source.Fetch(ticker.Symbol, ticker.Exchange, types.ResolutionDaily, quoteFetchBars)
			})
			if err != nil {
				failed++
				continue
			}
			if err := a.repos.Quotes.BatchUpsert(ticker.Symbol, bars); err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("daily-update: %d ticker(s) failed to refresh", failed)
		}
		return nil
	}

	code, err := d.RunDailyUpdate(context.Background(), date, dispatch.DailyUpdateOptions{
		SkipQuotes:       skipQuotes,
		SkipMonitors:     skipMonitors,
		UpdateQuotes:     updateQuotes,
		Machine:          machine,
		ActiveMonitorIDs: activeMonitorIDs,
	})
	if saveErr := a.save(); saveErr != nil {
		return fail(exitFatalOrLocked, saveErr)
	}
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "daily-update %s: exit code %d\n", date.Format("2006-01-02"), code)
	if code != exitSuccess {
		return fail(code, fmt.Errorf("daily-update completed with exit code %d", code))
	}
	return nil
}
