package optimize_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/backtester/internal/optimize"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func seedStore() *series.Store {
	store := series.NewStore(zap.NewNop())
	bars := make([]types.Bar, 0, 60)
	price := 100.0
	start := date("2024-01-01")
	for i := 0; i < 60; i++ {
		price += 1
		p := decimal.NewFromFloat(price)
		bars = append(bars, types.Bar{Date: start.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p, Volume: 100})
	}
	store.Append("X", bars)
	return store
}

func TestSweepEnumeratesCartesianProduct(t *testing.T) {
	store := seedStore()
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)

	driver := optimize.New(zap.NewNop())
	results, err := driver.Sweep(context.Background(), optimize.Input{
		Tickers:        []string{"X"},
		StartDate:      date("2024-01-01"),
		EndDate:        date("2024-03-01"),
		InitialCapital: decimal.NewFromInt(10000),
		Store:          store,
		StrategyName:   "momentum",
		Registry:       reg,
		BaseParams:     types.StrategyParams{"threshold": 0.02},
		OptimizationParams: []types.OptimizationParam{
			{Name: "period", From: 5, To: 25, Step: 5},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 5) // {5,10,15,20,25}
}

func TestSweepSingleStepEqualsFromTo(t *testing.T) {
	store := seedStore()
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)

	driver := optimize.New(zap.NewNop())
	results, err := driver.Sweep(context.Background(), optimize.Input{
		Tickers:        []string{"X"},
		StartDate:      date("2024-01-01"),
		EndDate:        date("2024-03-01"),
		InitialCapital: decimal.NewFromInt(10000),
		Store:          store,
		StrategyName:   "momentum",
		Registry:       reg,
		BaseParams:     types.StrategyParams{"threshold": 0.02},
		OptimizationParams: []types.OptimizationParam{
			{Name: "period", From: 50, To: 250, Step: 200},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2) // exactly {50, 250}
}

func TestSweepContinuesPastFailingCombination(t *testing.T) {
	store := series.NewStore(zap.NewNop()) // empty: every combination fails NoData
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)

	driver := optimize.New(zap.NewNop())
	results, err := driver.Sweep(context.Background(), optimize.Input{
		Tickers:        []string{"X"},
		StartDate:      date("2024-01-01"),
		EndDate:        date("2024-03-01"),
		InitialCapital: decimal.NewFromInt(10000),
		Store:          store,
		StrategyName:   "momentum",
		Registry:       reg,
		OptimizationParams: []types.OptimizationParam{
			{Name: "period", From: 5, To: 10, Step: 5},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotEmpty(t, r.Error)
		require.Nil(t, r.Statistics)
	}
}

func TestSweepRequiresAtLeastOneParam(t *testing.T) {
	store := seedStore()
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)

	driver := optimize.New(zap.NewNop())
	_, err := driver.Sweep(context.Background(), optimize.Input{
		Tickers:  []string{"X"},
		Store:    store,
		Registry: reg,
	})
	require.Error(t, err)
}
