package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/atlas-desktop/backtester/pkg/utils"
	"github.com/spf13/cobra"
)

var getBacktestResultsCmd = &cobra.Command{
	Use:   "get-backtest-results",
	Short: "Fetch one or more stored backtest run records",
	RunE:  runGetBacktestResults,
}

func init() {
	f := getBacktestResultsCmd.Flags()
	f.String("id", "", "fetch this run by id")
	f.String("strategy", "", "restrict to this strategy class")
	f.Int("last", 0, "limit to the N most recent runs")
	f.Bool("compare", false, "print a side-by-side comparison table")
	f.Bool("summary-only", false, "omit each run's error message, statistics only")
	f.String("format", "human", "output format: human|json")
}

func runGetBacktestResults(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	id, _ := f.GetString("id")
	strategyName, _ := f.GetString("strategy")
	last, _ := f.GetInt("last")
	summaryOnly, _ := f.GetBool("summary-only")
	compare, _ := f.GetBool("compare")

	a, err := newApp()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	var runs []types.RunRecord
	switch {
	case id != "":
		run, err := a.repos.Runs.Get(id)
		if err != nil {
			return fail(exitPartialFailure, err)
		}
		runs = []types.RunRecord{run}
	case strategyName != "":
		runs, err = a.repos.Runs.GetByStrategy(strategyName, last)
		if err != nil {
			return fail(exitPartialFailure, err)
		}
	default:
		all := a.repos.Runs.All()
		sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
		if last > 0 && len(all) > last {
			all = all[:last]
		}
		runs = all
	}

	format, _ := f.GetString("format")
	if format == "json" {
		payload := make([]map[string]any, 0, len(runs))
		for _, r := range runs {
			payload = append(payload, jsonResultPayload(r))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"runs": payload})
	}

	w := cmd.OutOrStdout()
	if compare {
		fmt.Fprintf(w, "%-36s %-16s %12s %10s %10s\n", "run", "strategy", "netProfit", "winRate%", "maxDD%")
		for _, r := range runs {
			if r.ResultMetrics == nil {
				fmt.Fprintf(w, "%-36s %-16s %12s\n", r.ID, r.StrategyClass, "n/a")
				continue
			}
			s := r.ResultMetrics
			fmt.Fprintf(w, "%-36s %-16s %12s %10s %10s\n",
				r.ID, r.StrategyClass, utils.FormatMoney(s.NetProfit, "USD"), s.WinRate.StringFixed(2), s.MaxDrawdownPercent.StringFixed(2))
		}
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(w, "Run %s (%s) — %s\n", r.ID, r.StrategyClass, r.Status)
		if r.ResultMetrics != nil {
			s := r.ResultMetrics
			fmt.Fprintf(w, "  netProfit=%s winRate=%s%% maxDrawdown%%=%s\n",
				utils.FormatMoney(s.NetProfit, "USD"), s.WinRate.StringFixed(2), s.MaxDrawdownPercent.StringFixed(2))
		}
		if !summaryOnly && r.ErrorMessage != "" {
			fmt.Fprintf(w, "  error: %s\n", r.ErrorMessage)
		}
	}
	return nil
}
