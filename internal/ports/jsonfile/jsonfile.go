// Package jsonfile gives the CLI durable persistence across independent
// process invocations (a subprocess spawned by the job dispatcher today,
// gone tomorrow) without a database driver: the whole repository state is
// loaded from one JSON document at startup and written back at the end of
// the command, the same load-whole-file/save-whole-file shape as the
// teacher's internal/data/store.go JSON bar cache, generalized from one
// symbol's bars to all four repo types.
package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/atlas-desktop/backtester/internal/ports/memory"
	"github.com/atlas-desktop/backtester/pkg/types"
)

// document is the on-disk shape: one JSON object holding every store's
// exported state.
type document struct {
	Tickers  []types.Ticker                   `json:"tickers"`
	Quotes   map[string][]types.Bar           `json:"quotes"`
	Runs     []types.RunRecord                `json:"runs"`
	Monitors memory.MonitorSnapshotDoc        `json:"monitors"`
}

// Repos bundles the four in-memory stores the CLI wires as ports, backed
// by a single JSON file at Path.
type Repos struct {
	Path string

	Tickers  *memory.TickerStore
	Quotes   *memory.QuoteStore
	Runs     *memory.RunStore
	Monitors *memory.MonitorStore
}

// Open loads path into a fresh set of in-memory stores, or returns empty
// stores if path does not yet exist (first run).
func Open(path string) (*Repos, error) {
	r := &Repos{
		Path:     path,
		Tickers:  memory.NewTickerStore(),
		Quotes:   memory.NewQuoteStore(),
		Runs:     memory.NewRunStore(),
		Monitors: memory.NewMonitorStore(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	r.Tickers.LoadAll(doc.Tickers)
	r.Quotes.LoadAll(doc.Quotes)
	r.Runs.LoadAll(doc.Runs)
	r.Monitors.Import(doc.Monitors)
	return r, nil
}

// Save writes the current state of all four stores back to Path,
// overwriting it atomically via a temp-file-then-rename so a crash
// mid-write never corrupts the previous snapshot.
func (r *Repos) Save() error {
	doc := document{
		Tickers:  r.Tickers.All(),
		Quotes:   r.Quotes.AllBars(),
		Runs:     r.Runs.All(),
		Monitors: r.Monitors.Export(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(r.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := r.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path)
}
