package main

import (
	"fmt"
	"strconv"

	"github.com/atlas-desktop/backtester/internal/dispatch"
	"github.com/atlas-desktop/backtester/internal/quotesource"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/atlas-desktop/backtester/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const quoteFetchBars = 500

var updateQuotesCmd = &cobra.Command{
	Use:   "update-quotes",
	Short: "Refresh stored bars for one or all enabled tickers",
	RunE:  runUpdateQuotes,
}

func init() {
	f := updateQuotesCmd.Flags()
	f.String("ticker-id", "", "only refresh this ticker (default: all enabled tickers)")
	f.Bool("force", false, "refetch even for tickers that already have stored quotes")
}

func runUpdateQuotes(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	tickerIDStr, _ := f.GetString("ticker-id")
	force, _ := f.GetBool("force")

	a, err := newApp()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	lock, err := dispatch.AcquireLock(a.cfg.VarDir, dispatch.JobUpdateQuotes)
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}
	defer lock.Release()

	var tickers []types.Ticker
	if tickerIDStr != "" {
		id, err := strconv.ParseInt(tickerIDStr, 10, 64)
		if err != nil {
			return fail(exitPartialFailure, fmt.Errorf("invalid --ticker-id: %w", err))
		}
		ticker, err := a.repos.Tickers.Get(id)
		if err != nil {
			return fail(exitPartialFailure, err)
		}
		tickers = []types.Ticker{ticker}
	} else {
		tickers, err = a.repos.Tickers.GetEnabledTickers()
		if err != nil {
			return fail(exitPartialFailure, err)
		}
	}

	source := quotesource.Unconfigured{Name: "default"}

	failures := 0
	for _, ticker := range tickers {
		if !force {
			if _, _, err := a.repos.Quotes.GetDateRange(ticker.Symbol); err == nil {
				continue
			}
		}
		bars, err := utils.Retry(utils.DefaultRetryConfig(), func() ([]types.Bar, error) {
			return source.Fetch(ticker.Symbol, ticker.Exchange, types.ResolutionDaily, quoteFetchBars)
		})
		if err != nil {
			a.logger.Warn("update-quotes: fetch failed", zap.String("ticker", ticker.Symbol), zap.Error(err))
			failures++
			continue
		}
		if err := a.repos.Quotes.BatchUpsert(ticker.Symbol, bars); err != nil {
			a.logger.Warn("update-quotes: upsert failed", zap.String("ticker", ticker.Symbol), zap.Error(err))
			failures++
		}
	}

	if err := a.save(); err != nil {
		return fail(exitFatalOrLocked, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "update-quotes: %d ticker(s) processed, %d failure(s)\n", len(tickers), failures)
	if failures > 0 {
		return fail(exitPartialFailure, fmt.Errorf("update-quotes: %d ticker(s) failed", failures))
	}
	return nil
}
