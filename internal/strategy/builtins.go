package strategy

import (
	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/atlas-desktop/backtester/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterBuiltins populates reg with the engine's shipped strategy
// classes. Call once per process, at composition-root time.
func RegisterBuiltins(reg *Registry) {
	reg.Register("momentum", momentumDescriptor(), newMomentumStrategy)
	reg.Register("mean_reversion", meanReversionDescriptor(), newMeanReversionStrategy)
}

// --- momentum ---------------------------------------------------------

// momentumStrategy opens long when trailing momentum over `period` bars
// exceeds `threshold`, and exits when momentum reverses. It commits its
// full available cash per entry and trades one ticker at a time.
type momentumStrategy struct {
	*Runtime
	period    int
	threshold decimal.Decimal
}

func momentumDescriptor() types.StrategyDescriptor {
	return types.StrategyDescriptor{
		Name:        "momentum",
		Description: "Trades based on price momentum over a lookback period",
		Parameters:  types.StrategyParams{"period": 14, "threshold": 0.02},
		Lookback:    14,
	}
}

func newMomentumStrategy(logger *zap.Logger, led *ledger.Ledger, overrides types.StrategyParams) (Strategy, error) {
	defaults := types.StrategyParams{"period": 14, "threshold": 0.02}
	period, err := paramInt(defaults.Merge(overrides), "period")
	if err != nil {
		return nil, err
	}
	threshold, err := paramFloat(defaults.Merge(overrides), "threshold")
	if err != nil {
		return nil, err
	}

	rt := NewRuntime("momentum", logger, led, defaults, overrides, period)
	return &momentumStrategy{Runtime: rt, period: period, threshold: decimal.NewFromFloat(threshold)}, nil
}

func (s *momentumStrategy) OnOpen(ctx *Context) error {
	return s.DrainPendingForKernel(ctx, ctx.Date)
}

func (s *momentumStrategy) OnClose(ctx *Context) error {
	for ticker, cursor := range ctx.Cursors {
		bar, ok := ctx.Bars[ticker]
		if !ok {
			continue
		}
		history := cursor.PrefixBefore(s.period)
		if len(history) < s.period {
			continue
		}
		past := history[0].Close
		current := bar.Close
		if past.IsZero() {
			continue
		}
		momentum := current.Sub(past).Div(past)

		openPositions := s.CurrentPositions()
		hasOpen := positionOnTicker(openPositions, ticker)

		switch {
		case momentum.GreaterThan(s.threshold) && hasOpen == nil:
			qty := s.Ledger.Cash().Div(current)
			if qty.GreaterThan(decimal.Zero) {
				s.Enqueue(types.SideLong, ticker, qty, "momentum entry")
			}
		case momentum.LessThan(s.threshold.Neg()) && hasOpen != nil:
			s.EnqueueClose(hasOpen.ID, "momentum reversal exit")
		}
	}
	return nil
}

func (s *momentumStrategy) OnStrategyEnd(ctx *Context) error {
	prices := make(map[string]decimal.Decimal, len(ctx.Bars))
	for ticker, bar := range ctx.Bars {
		prices[ticker] = bar.Close
	}
	return s.CloseAllAt(prices, ctx.Date, "strategy end")
}

// --- mean reversion -----------------------------------------------------

// meanReversionStrategy trades Bollinger Band extremes: buys below the
// lower band, sells (closes) above the upper band.
type meanReversionStrategy struct {
	*Runtime
	period     int
	stdDevMult decimal.Decimal
}

func meanReversionDescriptor() types.StrategyDescriptor {
	return types.StrategyDescriptor{
		Name:        "mean_reversion",
		Description: "Trades when price deviates from its moving average by multiple standard deviations",
		Parameters:  types.StrategyParams{"period": 20, "std_dev_mult": 2.0},
		Lookback:    20,
	}
}

func newMeanReversionStrategy(logger *zap.Logger, led *ledger.Ledger, overrides types.StrategyParams) (Strategy, error) {
	defaults := types.StrategyParams{"period": 20, "std_dev_mult": 2.0}
	period, err := paramInt(defaults.Merge(overrides), "period")
	if err != nil {
		return nil, err
	}
	mult, err := paramFloat(defaults.Merge(overrides), "std_dev_mult")
	if err != nil {
		return nil, err
	}

	rt := NewRuntime("mean_reversion", logger, led, defaults, overrides, period)
	return &meanReversionStrategy{Runtime: rt, period: period, stdDevMult: decimal.NewFromFloat(mult)}, nil
}

func (s *meanReversionStrategy) OnOpen(ctx *Context) error {
	return s.DrainPendingForKernel(ctx, ctx.Date)
}

func (s *meanReversionStrategy) OnClose(ctx *Context) error {
	for ticker, cursor := range ctx.Cursors {
		bar, ok := ctx.Bars[ticker]
		if !ok {
			continue
		}
		history := cursor.PrefixBefore(s.period)
		if len(history) < s.period {
			continue
		}

		closes := make([]decimal.Decimal, len(history))
		for i, b := range history {
			closes[i] = b.Close
		}
		sma := utils.CalculateMean(closes)
		stdDev := utils.CalculateStdDev(closes)
		if stdDev.IsZero() {
			continue
		}

		current := bar.Close
		upperBand := sma.Add(stdDev.Mul(s.stdDevMult))
		lowerBand := sma.Sub(stdDev.Mul(s.stdDevMult))

		openPositions := s.CurrentPositions()
		existing := positionOnTicker(openPositions, ticker)

		switch {
		case current.LessThan(lowerBand) && existing == nil:
			qty := s.Ledger.Cash().Div(current)
			if qty.GreaterThan(decimal.Zero) {
				s.Enqueue(types.SideLong, ticker, qty, "below lower band")
			}
		case current.GreaterThan(upperBand) && existing != nil:
			s.EnqueueClose(existing.ID, "above upper band")
		}
	}
	return nil
}

func (s *meanReversionStrategy) OnStrategyEnd(ctx *Context) error {
	prices := make(map[string]decimal.Decimal, len(ctx.Bars))
	for ticker, bar := range ctx.Bars {
		prices[ticker] = bar.Close
	}
	return s.CloseAllAt(prices, ctx.Date, "strategy end")
}

// --- shared helpers -----------------------------------------------------

func positionOnTicker(positions []types.Position, ticker string) *types.Position {
	for i := range positions {
		if positions[i].Ticker == ticker {
			return &positions[i]
		}
	}
	return nil
}

func paramInt(p types.StrategyParams, key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, types.InvalidInput("missing parameter %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, types.InvalidInput("parameter %q must be numeric, got %T", key, v)
	}
}

func paramFloat(p types.StrategyParams, key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, types.InvalidInput("missing parameter %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, types.InvalidInput("parameter %q must be numeric, got %T", key, v)
	}
}
