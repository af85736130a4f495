// Package optimize implements the Optimization Driver: Cartesian-product
// parameter sweeps, one isolated Simulation Kernel run per combination,
// with best-result selection by net profit.
package optimize

import (
	"context"
	"sort"
	"time"

	"github.com/atlas-desktop/backtester/internal/kernel"
	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Driver enumerates parameter combinations, instantiating a fresh strategy
// and ledger per combination so combinations never share mutable state.
type Driver struct {
	logger *zap.Logger
}

// New creates an optimization Driver.
func New(logger *zap.Logger) *Driver {
	return &Driver{logger: logger}
}

// Combination is one point in the Cartesian product of parameter values.
type Combination map[string]float64

// combinations enumerates the Cartesian product of params' value lists, in
// parameter-declaration order, sequentially (no stochastic component).
func combinations(params []types.OptimizationParam) []Combination {
	if len(params) == 0 {
		return []Combination{{}}
	}

	valueLists := make([][]float64, len(params))
	for i, p := range params {
		valueLists[i] = p.Values()
	}

	var build func(idx int, current Combination) []Combination
	build = func(idx int, current Combination) []Combination {
		if idx == len(params) {
			copied := make(Combination, len(current))
			for k, v := range current {
				copied[k] = v
			}
			return []Combination{copied}
		}
		var out []Combination
		for _, v := range valueLists[idx] {
			current[params[idx].Name] = v
			out = append(out, build(idx+1, current)...)
		}
		return out
	}

	return build(0, Combination{})
}

// Sweep runs one Simulation Kernel per Cartesian combination, sequentially,
// in parameter-declaration order. A failing combination is recorded with
// its error and the sweep continues. Results are ranked by netProfit
// descending, ties broken by lower maxDrawdownPercent, then by smaller
// parameter vector (lexicographic by parameter name).
func (d *Driver) Sweep(ctx context.Context, cfg Input) ([]types.OptimizationResult, error) {
	if len(cfg.OptimizationParams) == 0 {
		return nil, types.InvalidInput("optimization sweep requires at least one OptimizationParam")
	}
	for _, p := range cfg.OptimizationParams {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	combos := combinations(cfg.OptimizationParams)
	results := make([]types.OptimizationResult, 0, len(combos))

	for _, combo := range combos {
		select {
		case <-ctx.Done():
			rank(results)
			return results, nil // cancellation halts before the next combination; completed ones preserved
		default:
		}

		params := cfg.BaseParams.Clone()
		for k, v := range combo {
			params[k] = v
		}

		led := ledger.New(d.logger, cfg.InitialCapital)
		strat, err := cfg.Registry.Instantiate(cfg.StrategyName, d.logger, led, params)
		if err != nil {
			results = append(results, types.OptimizationResult{Params: params, Error: err.Error()})
			continue
		}

		k := kernel.New(d.logger, 1)
		runResult, err := k.Run(ctx, kernel.Config{
			Tickers:         cfg.Tickers,
			StartDate:       cfg.StartDate,
			EndDate:         cfg.EndDate,
			BenchmarkTicker: cfg.BenchmarkTicker,
			IsLive:          false,
			Store:           cfg.Store,
			Ledger:          led,
			Strategy:        strat,
		})
		if err != nil {
			results = append(results, types.OptimizationResult{Params: params, Error: err.Error()})
			continue
		}

		stats := runResult.Statistics
		results = append(results, types.OptimizationResult{Params: params, Statistics: &stats})
	}

	rank(results)
	return results, nil
}

// Input bundles the parameters Sweep needs: the simulation window and
// universe shared across every combination, plus the optimization params
// to enumerate.
type Input struct {
	Tickers            []string
	StartDate          time.Time
	EndDate            time.Time
	BenchmarkTicker    string
	InitialCapital     decimal.Decimal
	Store              *series.Store
	StrategyName       string
	Registry           *strategy.Registry
	BaseParams         types.StrategyParams
	OptimizationParams []types.OptimizationParam
}

// rank sorts results best-first: netProfit descending, ties broken by
// lower maxDrawdownPercent, then lexicographically by parameter name/value.
// Failed combinations (nil Statistics) sort last.
func rank(results []types.OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Statistics == nil) != (b.Statistics == nil) {
			return a.Statistics != nil
		}
		if a.Statistics == nil {
			return false
		}
		if !a.Statistics.NetProfit.Equal(b.Statistics.NetProfit) {
			return a.Statistics.NetProfit.GreaterThan(b.Statistics.NetProfit)
		}
		if !a.Statistics.MaxDrawdownPercent.Equal(b.Statistics.MaxDrawdownPercent) {
			return a.Statistics.MaxDrawdownPercent.LessThan(b.Statistics.MaxDrawdownPercent)
		}
		return lexLess(a.Params, b.Params)
	})
}

func lexLess(a, b types.StrategyParams) bool {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		af, aok := toFloat(a[k])
		bf, bok := toFloat(b[k])
		if aok && bok && af != bf {
			return af < bf
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Best returns the top-ranked result, or false if all combinations failed.
func Best(results []types.OptimizationResult) (types.OptimizationResult, bool) {
	if len(results) == 0 || results[0].Statistics == nil {
		return types.OptimizationResult{}, false
	}
	return results[0], true
}
