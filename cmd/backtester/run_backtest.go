package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atlas-desktop/backtester/internal/kernel"
	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/internal/optimize"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/atlas-desktop/backtester/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var runBacktestCmd = &cobra.Command{
	Use:   "run-backtest",
	Short: "Run or replay a backtest",
	RunE:  runRunBacktest,
}

func init() {
	f := runBacktestCmd.Flags()
	f.String("run-id", "", "replay a previously stored run instead of configuring a new one")
	f.String("strategy", "", "strategy class name")
	f.String("tickers", "", "comma-separated ticker symbols")
	f.String("start-date", "", "start date YYYY-MM-DD")
	f.String("end-date", "", "end date YYYY-MM-DD")
	f.String("initial-capital", "10000", "initial capital (when not passed, the config's default_initial_capital is used)")
	f.String("benchmark", "", "benchmark ticker symbol")
	f.StringArray("param", nil, "strategy parameter override, key=value (repeatable)")
	f.Bool("optimize", false, "run a parameter sweep instead of a single simulation")
	f.StringArray("opt", nil, "optimization parameter, name=from:to:step (repeatable)")
	f.Bool("no-save", false, "don't persist the run record")
	f.String("format", "human", "output format: human|json")
}

func runRunBacktest(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	runID, _ := f.GetString("run-id")
	strategyName, _ := f.GetString("strategy")
	tickersStr, _ := f.GetString("tickers")
	startStr, _ := f.GetString("start-date")
	endStr, _ := f.GetString("end-date")
	capitalStr, _ := f.GetString("initial-capital")
	benchmark, _ := f.GetString("benchmark")
	paramFlags, _ := f.GetStringArray("param")
	doOptimize, _ := f.GetBool("optimize")
	optFlags, _ := f.GetStringArray("opt")
	noSave, _ := f.GetBool("no-save")
	format, _ := f.GetString("format")

	a, err := newApp()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	var run types.RunRecord
	if runID != "" {
		run, err = a.repos.Runs.Get(runID)
		if err != nil {
			return fail(exitPartialFailure, err)
		}
	} else {
		if strategyName == "" || tickersStr == "" || startStr == "" || endStr == "" {
			return fail(exitPartialFailure, fmt.Errorf("run-backtest: --strategy, --tickers, --start-date, --end-date are required without --run-id"))
		}
		start, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return fail(exitPartialFailure, fmt.Errorf("invalid --start-date: %w", err))
		}
		end, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return fail(exitPartialFailure, fmt.Errorf("invalid --end-date: %w", err))
		}
		capital, err := decimal.NewFromString(capitalStr)
		if err != nil {
			return fail(exitPartialFailure, fmt.Errorf("invalid --initial-capital: %w", err))
		}
		if !f.Changed("initial-capital") {
			capital = a.cfg.DefaultInitialCapital
		}
		params, err := parseParamFlags(paramFlags)
		if err != nil {
			return fail(exitPartialFailure, err)
		}
		optParams, err := parseOptFlags(optFlags)
		if err != nil {
			return fail(exitPartialFailure, err)
		}

		run = types.RunRecord{
			ID:                 uuid.New().String(),
			StrategyClass:      strategyName,
			StrategyParameters: params,
			Tickers:            splitCSV(tickersStr),
			BenchmarkTicker:    benchmark,
			StartDate:          start,
			EndDate:            end,
			InitialCapital:     capital,
			IsOptimization:     doOptimize,
			OptimizationParams: optParams,
			Status:             types.RunPending,
			CreatedAt:          time.Now(),
		}
		if !noSave {
			if run, err = a.repos.Runs.Create(run); err != nil {
				return fail(exitFatalOrLocked, err)
			}
		}
	}

	if !a.registry.IsValid(run.StrategyClass) {
		return fail(exitPartialFailure, fmt.Errorf("unknown strategy class %q", run.StrategyClass))
	}

	store := series.NewStore(a.logger)
	for _, ticker := range run.Tickers {
		bars, err := a.repos.Quotes.GetWindow(ticker, time.Time{}, run.EndDate)
		if err != nil {
			return fail(exitPartialFailure, err)
		}
		store.Append(ticker, bars)
	}
	if run.BenchmarkTicker != "" {
		bars, err := a.repos.Quotes.GetWindow(run.BenchmarkTicker, time.Time{}, run.EndDate)
		if err == nil {
			store.Append(run.BenchmarkTicker, bars)
		}
	}

	started := time.Now()
	if !noSave {
		_ = a.repos.Runs.UpdateStatus(run.ID, types.RunRunning)
	}

	ctx := context.Background()

	if run.IsOptimization {
		driver := optimize.New(a.logger)
		results, err := driver.Sweep(ctx, optimize.Input{
			Tickers:            run.Tickers,
			StartDate:          run.StartDate,
			EndDate:            run.EndDate,
			BenchmarkTicker:    run.BenchmarkTicker,
			InitialCapital:     run.InitialCapital,
			Store:              store,
			StrategyName:       run.StrategyClass,
			Registry:           a.registry,
			BaseParams:         run.StrategyParameters,
			OptimizationParams: run.OptimizationParams,
		})
		elapsed := time.Since(started).Seconds()
		if err != nil {
			if !noSave {
				_ = a.repos.Runs.UpdateError(run.ID, err.Error())
			}
			return fail(exitPartialFailure, err)
		}
		run.OptimizationRuns = results
		best, hasBest := optimize.Best(results)
		if hasBest {
			run.ResultMetrics = best.Statistics
		}
		run.Status = types.RunCompleted
		run.ExecutionSeconds = &elapsed
		if !noSave {
			if best.Statistics != nil {
				_ = a.repos.Runs.UpdateResults(run.ID, *best.Statistics)
			} else {
				_ = a.repos.Runs.UpdateStatus(run.ID, types.RunCompleted)
			}
			if err := a.save(); err != nil {
				return fail(exitFatalOrLocked, err)
			}
		}
		return printOptimizationResult(cmd, run, format)
	}

	led := ledger.New(a.logger, run.InitialCapital)
	strat, err := a.registry.Instantiate(run.StrategyClass, a.logger, led, run.StrategyParameters)
	if err != nil {
		if !noSave {
			_ = a.repos.Runs.UpdateError(run.ID, err.Error())
		}
		return fail(exitPartialFailure, err)
	}

	k := kernel.New(a.logger, 16)
	result, err := k.Run(ctx, kernel.Config{
		Tickers:         run.Tickers,
		StartDate:       run.StartDate,
		EndDate:         run.EndDate,
		Resolution:      types.ResolutionDaily,
		BenchmarkTicker: run.BenchmarkTicker,
		Store:           store,
		Ledger:          led,
		Strategy:        strat,
	})
	elapsed := time.Since(started).Seconds()
	if err != nil {
		if !noSave {
			_ = a.repos.Runs.UpdateError(run.ID, err.Error())
			_ = a.save()
		}
		return fail(exitPartialFailure, err)
	}

	run.ResultMetrics = &result.Statistics
	run.ExecutionSeconds = &elapsed
	run.Status = types.RunCompleted
	if !noSave {
		_ = a.repos.Runs.UpdateResults(run.ID, result.Statistics)
		if err := a.save(); err != nil {
			return fail(exitFatalOrLocked, err)
		}
	}

	return printBacktestResult(cmd, run, result, format)
}

func parseParamFlags(flags []string) (types.StrategyParams, error) {
	params := types.StrategyParams{}
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", f)
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			params[k] = n
		} else {
			params[k] = v
		}
	}
	return params, nil
}

func parseOptFlags(flags []string) ([]types.OptimizationParam, error) {
	var out []types.OptimizationParam
	for _, f := range flags {
		name, rest, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --opt %q, expected name=from:to:step", f)
		}
		parts := strings.Split(rest, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid --opt %q, expected name=from:to:step", f)
		}
		from, err1 := strconv.ParseFloat(parts[0], 64)
		to, err2 := strconv.ParseFloat(parts[1], 64)
		step, err3 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("invalid --opt %q: non-numeric from/to/step", f)
		}
		p := types.OptimizationParam{Name: name, From: from, To: to, Step: step}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printBacktestResult(cmd *cobra.Command, run types.RunRecord, result *kernel.Result, format string) error {
	if format == "json" {
		out := jsonResultPayload(run)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.StrategyClass)
	fmt.Fprintf(w, "  Window: %s to %s\n", run.StartDate.Format("2006-01-02"), run.EndDate.Format("2006-01-02"))
	if run.ResultMetrics != nil {
		s := run.ResultMetrics
		fmt.Fprintf(w, "  Net profit:     %s (%s%%)\n", utils.FormatMoney(s.NetProfit, "USD"), s.NetProfitPercent.StringFixed(2))
		fmt.Fprintf(w, "  Trades:         %d (%d win / %d loss / %d breakeven)\n",
			s.TotalTransactions, s.ProfitableTransactions, s.LosingTransactions, s.BreakEvenTransactions)
		fmt.Fprintf(w, "  Win rate:       %s%%\n", s.WinRate.StringFixed(2))
		fmt.Fprintf(w, "  Profit factor:  %s\n", s.ProfitFactor.StringFixed(2))
		fmt.Fprintf(w, "  Max drawdown:   %s (%s%%)\n", utils.FormatMoney(s.MaxDrawdownValue, "USD"), s.MaxDrawdownPercent.StringFixed(2))
	}
	if result != nil && len(result.CapitalSeries) > 1 {
		equities := make([]decimal.Decimal, len(result.CapitalSeries))
		for i, p := range result.CapitalSeries {
			equities[i] = p.Equity
		}
		returns := utils.CalculateReturns(equities)
		sharpe := utils.CalculateSharpeRatio(returns, decimal.Zero, 252)
		fmt.Fprintf(w, "  Sharpe ratio:   %s\n", sharpe.StringFixed(2))
	}
	if run.ExecutionSeconds != nil {
		fmt.Fprintf(w, "  Execution time: %.2fs\n", *run.ExecutionSeconds)
	}
	return nil
}

func printOptimizationResult(cmd *cobra.Command, run types.RunRecord, format string) error {
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"success":       true,
			"run_id":        run.ID,
			"configuration": runConfiguration(run),
			"results":       run.OptimizationRuns,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Optimization run %s (%s): %d combinations\n", run.ID, run.StrategyClass, len(run.OptimizationRuns))
	for i, r := range run.OptimizationRuns {
		if i >= 10 {
			fmt.Fprintf(w, "  ... and %d more\n", len(run.OptimizationRuns)-10)
			break
		}
		if r.Statistics == nil {
			fmt.Fprintf(w, "  %v: failed (%s)\n", r.Params, r.Error)
			continue
		}
		fmt.Fprintf(w, "  %v: netProfit=%s maxDrawdown%%=%s\n",
			r.Params, utils.FormatMoney(r.Statistics.NetProfit, "USD"), r.Statistics.MaxDrawdownPercent.StringFixed(2))
	}
	return nil
}

func jsonResultPayload(run types.RunRecord) map[string]any {
	metrics := map[string]any{}
	if run.ResultMetrics != nil {
		s := run.ResultMetrics
		metrics = map[string]any{
			"net_profit":              s.NetProfit,
			"net_profit_percent":      s.NetProfitPercent,
			"total_transactions":      s.TotalTransactions,
			"profitable_transactions": s.ProfitableTransactions,
			"losing_transactions":     s.LosingTransactions,
			"profit_factor":           s.ProfitFactor,
			"max_drawdown_value":      s.MaxDrawdownValue,
			"max_drawdown_percent":    s.MaxDrawdownPercent,
			"win_rate":                s.WinRate,
			"average_win":             s.AverageWin,
			"average_loss":            s.AverageLoss,
		}
	}
	execTime := 0.0
	if run.ExecutionSeconds != nil {
		execTime = *run.ExecutionSeconds
	}
	return map[string]any{
		"success":        run.Status == types.RunCompleted,
		"run_id":         run.ID,
		"execution_time": execTime,
		"metrics":        metrics,
		"configuration":  runConfiguration(run),
	}
}

func runConfiguration(run types.RunRecord) map[string]any {
	return map[string]any{
		"name":            run.Name,
		"strategy":        run.StrategyClass,
		"tickers":         run.Tickers,
		"start_date":      run.StartDate.Format("2006-01-02"),
		"end_date":        run.EndDate.Format("2006-01-02"),
		"initial_capital": run.InitialCapital,
		"is_optimization": run.IsOptimization,
	}
}
