package types

// StrategyParams is a mapping paramName -> scalar (numeric or string). Each
// strategy class declares defaults; callers may override a fixed set of
// keys per class.
type StrategyParams map[string]any

// Clone returns a shallow copy so a caller can overlay overrides onto a
// strategy's declared defaults without mutating them.
func (p StrategyParams) Clone() StrategyParams {
	out := make(StrategyParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a new StrategyParams with overrides layered onto p.
func (p StrategyParams) Merge(overrides StrategyParams) StrategyParams {
	out := p.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// StrategyVariables is the opaque, strategy-owned state blob persisted
// across monitor invocations. The core never interprets its contents; only
// the strategy that produced it does.
type StrategyVariables map[string]any

// StrategySnapshot is the serializable summary of strategy + ledger state
// at the close of one bar, used to resume a monitor without observable
// difference from linear execution.
type StrategySnapshot struct {
	Date              string            `json:"date"`
	StrategyVariables StrategyVariables `json:"strategyVariables"`
	OpenPositions     []Position        `json:"openPositions"`
	Cash              string            `json:"cash"`
	Equity            string            `json:"equity"`
	PeakEquity        string            `json:"peakEquity"`
	CumulativeReturn  string            `json:"cumulativeReturn"`
	DailyReturn       string            `json:"dailyReturn"`
}

// OptimizationParam describes one swept parameter: values enumerate
// from, from+step, ..., <=to. step must be > 0 and from <= to.
type OptimizationParam struct {
	Name string  `json:"name"`
	From float64 `json:"from"`
	To   float64 `json:"to"`
	Step float64 `json:"step"`
}

// Validate checks the OptimizationParam invariants.
func (o OptimizationParam) Validate() error {
	if o.Step <= 0 {
		return InvalidInput("optimization param %q: step must be > 0, got %v", o.Name, o.Step)
	}
	if o.From > o.To {
		return InvalidInput("optimization param %q: from %v must be <= to %v", o.Name, o.From, o.To)
	}
	return nil
}

// Values enumerates from, from+step, ..., <=to.
func (o OptimizationParam) Values() []float64 {
	var values []float64
	for v := o.From; v <= o.To+1e-9; v += o.Step {
		values = append(values, v)
	}
	return values
}

// StrategyDescriptor is what a StrategyFactory reports about a registered
// strategy class: its default parameters, lookback requirement, and a
// human description.
type StrategyDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  StrategyParams `json:"parameters"`
	Lookback    int            `json:"lookback"`
}
