// Package quotesource provides ports.QuoteSource implementations. Live
// market-data acquisition is explicitly out of this engine's scope
// (spec.md places update-quotes' actual fetch behind "the out-of-scope
// data layer"); this package gives the one implementation the core
// itself needs: a deterministic stub usable in tests and as a
// configuration placeholder until a deployment wires a real feed.
package quotesource

import (
	"github.com/atlas-desktop/backtester/pkg/types"
)

// Unconfigured is a ports.QuoteSource that always fails with InvalidInput,
// naming the source so an operator knows update-quotes has no real feed
// wired yet, rather than silently no-op-ing.
type Unconfigured struct {
	Name string
}

func (u Unconfigured) Fetch(symbol, exchange string, resolution types.Resolution, nBars int) ([]types.Bar, error) {
	return nil, types.InvalidInput("quote source %q is not configured; update-quotes requires a real QuoteSource", u.Name)
}
