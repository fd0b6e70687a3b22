package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV row of a historical series for a single instrument.
// Prices are plain float64; the backtest ledger works in fractional shares.
type Candle struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // bar start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Time returns the bar start time. Row types that carry a timestamp implement
// Timed so entry metadata can record when a position was opened.
func (c Candle) Time() time.Time { return c.TS }

// Typical returns (high+low+close)/3.
func (c Candle) Typical() float64 { return (c.High + c.Low + c.Close) / 3 }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Timed is implemented by row types that know their own timestamp.
type Timed interface {
	Time() time.Time
}
