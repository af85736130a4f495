package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one immutable OHLCV record for one ticker on one calendar date.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// DateKey returns the canonical YYYY-MM-DD calendar-day key for the bar,
// normalized to UTC midnight so bars loaded with stray time-of-day
// components still compare and dedupe correctly.
func (b Bar) DateKey() string {
	return b.Date.UTC().Format("2006-01-02")
}

// Validate enforces the OHLC ordering invariants: open<=high, low<=open,
// low<=close<=high, low<=high, volume>=0.
func (b Bar) Validate() error {
	if b.Volume < 0 {
		return InvalidInput("bar %s: negative volume %d", b.DateKey(), b.Volume)
	}
	if b.Open.GreaterThan(b.High) {
		return InvalidInput("bar %s: open %s > high %s", b.DateKey(), b.Open, b.High)
	}
	if b.Low.GreaterThan(b.Open) {
		return InvalidInput("bar %s: low %s > open %s", b.DateKey(), b.Low, b.Open)
	}
	if b.Low.GreaterThan(b.Close) || b.Close.GreaterThan(b.High) {
		return InvalidInput("bar %s: close %s outside [low %s, high %s]", b.DateKey(), b.Close, b.Low, b.High)
	}
	if b.Low.GreaterThan(b.High) {
		return InvalidInput("bar %s: low %s > high %s", b.DateKey(), b.Low, b.High)
	}
	return nil
}

// Resolution is the bar-stepping granularity a simulation runs at.
type Resolution string

const (
	ResolutionDaily  Resolution = "daily"
	ResolutionWeekly Resolution = "weekly"
)

// Ticker is the durable identity of a tradable instrument.
type Ticker struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Source    string    `json:"source"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the (symbol, exchange) identity used by the Time Series Store.
func (t Ticker) Key() string {
	return t.Symbol + "@" + t.Exchange
}
