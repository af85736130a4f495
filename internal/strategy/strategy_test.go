package strategy_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryInstantiatesBuiltins(t *testing.T) {
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)

	require.True(t, reg.IsValid("momentum"))
	require.True(t, reg.IsValid("mean_reversion"))
	require.False(t, reg.IsValid("unknown"))

	led := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))
	s, err := reg.Instantiate("momentum", zap.NewNop(), led, types.StrategyParams{"period": 5})
	require.NoError(t, err)
	require.Equal(t, 5, s.GetMaxLookbackPeriod())
}

func TestRegistryUnknownStrategy(t *testing.T) {
	reg := strategy.NewRegistry()
	strategy.RegisterBuiltins(reg)

	led := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))
	_, err := reg.Instantiate("does-not-exist", zap.NewNop(), led, nil)
	require.Error(t, err)
}

func TestRuntimeVariablesRoundTrip(t *testing.T) {
	led := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))
	rt := strategy.NewRuntime("test", zap.NewNop(), led, types.StrategyParams{}, nil, 0)

	rt.SetVariable("emaFast", 101.5)
	vars := rt.Variables()
	require.Equal(t, 101.5, vars["emaFast"])

	rt2 := strategy.NewRuntime("test", zap.NewNop(), led, types.StrategyParams{}, nil, 0)
	rt2.SetVariables(vars)
	v, ok := rt2.GetVariable("emaFast")
	require.True(t, ok)
	require.Equal(t, 101.5, v)
}

func TestRuntimeEnqueueDrainsAtNextOpen(t *testing.T) {
	led := ledger.New(zap.NewNop(), decimal.NewFromInt(1000))
	rt := strategy.NewRuntime("test", zap.NewNop(), led, types.StrategyParams{}, nil, 0)

	rt.Enqueue(types.SideLong, "X", decimal.NewFromInt(2), "test entry")

	date, _ := time.Parse("2006-01-02", "2024-01-02")
	ctx := &strategy.Context{
		Date: date,
		Bars: map[string]types.Bar{
			"X": {Date: date, Open: decimal.NewFromInt(50), High: decimal.NewFromInt(51), Low: decimal.NewFromInt(49), Close: decimal.NewFromInt(50)},
		},
	}

	require.NoError(t, rt.DrainPendingForKernel(ctx, date))
	positions := rt.CurrentPositions()
	require.Len(t, positions, 1)
	require.True(t, positions[0].OpenPrice.Equal(decimal.NewFromInt(50)))
}
