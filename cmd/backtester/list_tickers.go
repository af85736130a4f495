package main

import (
	"encoding/json"
	"fmt"

	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/spf13/cobra"
)

var listTickersCmd = &cobra.Command{
	Use:   "list-tickers",
	Short: "List configured tickers",
	RunE:  runListTickers,
}

func init() {
	f := listTickersCmd.Flags()
	f.Bool("enabled-only", false, "only list enabled tickers")
	f.Bool("with-stats", false, "include stored quote date range")
	f.String("format", "human", "output format: human|json")
}

func runListTickers(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	enabledOnly, _ := f.GetBool("enabled-only")
	withStats, _ := f.GetBool("with-stats")
	format, _ := f.GetString("format")

	a, err := newApp()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	var items []types.Ticker
	if enabledOnly {
		items, err = a.repos.Tickers.GetEnabledTickers()
		if err != nil {
			return fail(exitPartialFailure, err)
		}
	} else {
		items = a.repos.Tickers.All()
	}

	tickers := make([]map[string]any, 0, len(items))
	for _, t := range items {
		entry := map[string]any{
			"id":       t.ID,
			"symbol":   t.Symbol,
			"exchange": t.Exchange,
			"source":   t.Source,
			"enabled":  t.Enabled,
		}
		if withStats {
			from, to, err := a.repos.Quotes.GetDateRange(t.Symbol)
			if err == nil {
				entry["dataFrom"] = from.Format("2006-01-02")
				entry["dataTo"] = to.Format("2006-01-02")
			}
		}
		tickers = append(tickers, entry)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"tickers": tickers})
	}

	w := cmd.OutOrStdout()
	for _, t := range tickers {
		fmt.Fprintf(w, "%-6v %-10v %-8v enabled=%v\n", t["id"], t["symbol"], t["exchange"], t["enabled"])
		if withStats {
			fmt.Fprintf(w, "  data: %v to %v\n", t["dataFrom"], t["dataTo"])
		}
	}
	return nil
}
