// Package strategy defines the Strategy Contract capability set
// ({onOpen, onClose, onStrategyEnd, getMaxLookbackPeriod}) and the shared
// runtime (ledger handle, logger, parameters, pending-signal queue)
// concrete strategies embed.
package strategy

import (
	"sync"
	"time"

	"github.com/atlas-desktop/backtester/internal/ledger"
	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Context is passed to every event method; it carries the bar assets, the
// current date, and whether the invocation is a live (monitor) advance as
// opposed to a historical backtest step.
type Context struct {
	Date    time.Time
	IsLive  bool
	Assets  map[string]*series.Asset
	Cursors map[string]series.Cursor
	Bars    map[string]types.Bar // current-date bar per ticker, where present
}

// Strategy is the capability set every strategy class implements.
type Strategy interface {
	GetMaxLookbackPeriod() int
	OnOpen(ctx *Context) error
	OnClose(ctx *Context) error
	OnStrategyEnd(ctx *Context) error
}

// pendingAction is a signal enqueued in OnClose for execution at the next
// bar's OnOpen — the default deferred-execution policy.
type pendingAction struct {
	isClose    bool
	side       types.Side
	ticker     string
	quantity   decimal.Decimal
	positionID string
	comment    string
	closeAll   bool
}

// Runtime is the shared "strategy runtime" every concrete strategy embeds:
// a ledger handle, logger, parameter map, position set, and the pending
// deferred-signal queue. Concrete strategies embed Runtime and implement
// the event methods, inheriting GetMaxLookbackPeriod and the queue,
// variable and position helpers from Runtime.
type Runtime struct {
	Name       string
	Ledger     *ledger.Ledger
	Logger     *zap.Logger
	Params     types.StrategyParams
	Lookback   int

	mu        sync.Mutex
	variables types.StrategyVariables
	pending   []pendingAction
}

// NewRuntime constructs a Runtime. defaults are overlaid with overrides
// per the fixed-keys-per-class contract.
func NewRuntime(name string, logger *zap.Logger, ledger *ledger.Ledger, defaults types.StrategyParams, overrides types.StrategyParams, lookback int) *Runtime {
	return &Runtime{
		Name:      name,
		Ledger:    ledger,
		Logger:    logger,
		Params:    defaults.Merge(overrides),
		Lookback:  lookback,
		variables: types.StrategyVariables{},
	}
}

// GetMaxLookbackPeriod satisfies the Strategy interface for embedders that
// don't need a dynamic lookback.
func (rt *Runtime) GetMaxLookbackPeriod() int { return rt.Lookback }

// Variables returns the opaque strategy-state blob for persistence.
func (rt *Runtime) Variables() types.StrategyVariables {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make(types.StrategyVariables, len(rt.variables))
	for k, v := range rt.variables {
		out[k] = v
	}
	return out
}

// SetVariables restores the opaque strategy-state blob, e.g. when a
// monitor resumes from a snapshot.
func (rt *Runtime) SetVariables(vars types.StrategyVariables) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.variables = vars
}

// SetVariable stashes one key in the opaque state blob.
func (rt *Runtime) SetVariable(key string, value any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.variables == nil {
		rt.variables = types.StrategyVariables{}
	}
	rt.variables[key] = value
}

// GetVariable reads one key from the opaque state blob.
func (rt *Runtime) GetVariable(key string) (any, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	v, ok := rt.variables[key]
	return v, ok
}

// CurrentPositions returns the strategy's open positions.
func (rt *Runtime) CurrentPositions() []types.Position {
	return rt.Ledger.OpenPositions()
}

// Enqueue records an intent to open a position, executed at the next bar's
// open price — the default deferred-signal policy for actions recorded
// during OnClose.
func (rt *Runtime) Enqueue(side types.Side, ticker string, quantity decimal.Decimal, comment string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.pending = append(rt.pending, pendingAction{side: side, ticker: ticker, quantity: quantity, comment: comment})
}

// EnqueueClose records an intent to close positionID at the next bar's open.
func (rt *Runtime) EnqueueClose(positionID string, comment string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.pending = append(rt.pending, pendingAction{isClose: true, positionID: positionID, comment: comment})
}

// EnqueueCloseAll records an intent to close every open position at the
// next bar's open.
func (rt *Runtime) EnqueueCloseAll(comment string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.pending = append(rt.pending, pendingAction{isClose: true, closeAll: true, comment: comment})
}

// drainPending executes every queued action at the given bar's prices and
// clears the queue. Strategies call it, through DrainPendingForKernel, at
// the start of their own OnOpen; the kernel does not call it. A Long entry
// whose quantity costs more than the available cash at this bar's open is
// reduced to the quantity that cash buys.
func (rt *Runtime) drainPending(ctx *Context, date time.Time) error {
	rt.mu.Lock()
	actions := rt.pending
	rt.pending = nil
	rt.mu.Unlock()

	for _, a := range actions {
		if a.isClose {
			if a.closeAll {
				prices := make(map[string]decimal.Decimal, len(ctx.Bars))
				for ticker, bar := range ctx.Bars {
					prices[ticker] = bar.Open
				}
				if err := rt.Ledger.CloseAll(prices, date, a.comment); err != nil {
					return err
				}
				continue
			}
			price, ok := rt.priceForPosition(ctx, a.positionID)
			if !ok {
				continue // ticker has no bar today; leave position open
			}
			if _, err := rt.Ledger.ClosePosition(a.positionID, price, date); err != nil {
				return err
			}
			continue
		}

		bar, ok := ctx.Bars[a.ticker]
		if !ok {
			continue // no bar today for this ticker; signal is dropped
		}
		qty := a.quantity
		if a.side == types.SideLong && bar.Open.Mul(qty).GreaterThan(rt.Ledger.Cash()) {
			qty, _ = rt.Ledger.Cash().QuoRem(bar.Open, 12)
			if !qty.IsPositive() {
				continue // no cash left for this entry; signal is dropped
			}
		}
		if _, err := rt.Ledger.OpenPosition(a.side, a.ticker, bar.Open, qty, date, a.comment); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) priceForPosition(ctx *Context, positionID string) (decimal.Decimal, bool) {
	for _, p := range rt.Ledger.OpenPositions() {
		if p.ID == positionID {
			if bar, ok := ctx.Bars[p.Ticker]; ok {
				return bar.Open, true
			}
			return decimal.Zero, false
		}
	}
	return decimal.Zero, false
}

// EnterAt opens a position immediately at an explicit price — the opt-in
// escape hatch for same-bar entries, bypassing the default deferred queue.
func (rt *Runtime) EnterAt(side types.Side, ticker string, quantity, price decimal.Decimal, date time.Time, comment string) (types.Position, error) {
	return rt.Ledger.OpenPosition(side, ticker, price, quantity, date, comment)
}

// CloseAt closes a position immediately at an explicit price.
func (rt *Runtime) CloseAt(positionID string, price decimal.Decimal, date time.Time) (decimal.Decimal, error) {
	return rt.Ledger.ClosePosition(positionID, price, date)
}

// CloseAllAt closes every open position immediately at explicit prices.
func (rt *Runtime) CloseAllAt(prices map[string]decimal.Decimal, date time.Time, comment string) error {
	return rt.Ledger.CloseAll(prices, date, comment)
}

// DrainPendingForKernel exposes drainPending to strategies embedding
// Runtime, which call it at the start of their OnOpen; the simulation
// kernel itself never calls it.
func (rt *Runtime) DrainPendingForKernel(ctx *Context, date time.Time) error {
	return rt.drainPending(ctx, date)
}

// Factory instantiates a named strategy with parameter overrides.
type Factory func(logger *zap.Logger, ledger *ledger.Ledger, overrides types.StrategyParams) (Strategy, error)

// Registry is the typed plugin registry populated at process start, per
// the dynamic-strategy-loading-to-static-registry design decision: a map
// from strategy name to a factory closure instantiating a concrete
// Strategy.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	descriptor map[string]types.StrategyDescriptor
}

// NewRegistry creates an empty registry. Call RegisterBuiltins to populate
// it with the shipped strategy classes.
func NewRegistry() *Registry {
	return &Registry{
		factories:  make(map[string]Factory),
		descriptor: make(map[string]types.StrategyDescriptor),
	}
}

// Register adds a strategy class under name.
func (r *Registry) Register(name string, desc types.StrategyDescriptor, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	r.descriptor[name] = desc
}

// ListStrategies returns all registered strategy names.
func (r *Registry) ListStrategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// IsValid reports whether name is a registered strategy class.
func (r *Registry) IsValid(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Describe returns the registered descriptor for name.
func (r *Registry) Describe(name string) (types.StrategyDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptor[name]
	return d, ok
}

// Instantiate builds a Strategy instance by name with parameter overrides
// layered onto its declared defaults.
func (r *Registry) Instantiate(name string, logger *zap.Logger, ledger *ledger.Ledger, overrides types.StrategyParams) (Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.InvalidInput("unknown strategy %q", name)
	}
	return factory(logger, ledger, overrides)
}
