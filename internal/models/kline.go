package models

import (
	"fmt"
	"time"
)

// RawKlineMessage represents a raw candlestick payload from an exchange
// websocket or REST backfill.
type RawKlineMessage struct {
	Exchange  string
	Symbol    string
	Interval  string
	Data      []byte
	Timestamp time.Time
}

// Candle is a normalized OHLCV bar keyed by its open time in epoch seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// NewCandle validates the OHLCV fields.
func NewCandle(ts int64, open, high, low, close, volume float64) (Candle, error) {
	if ts <= 0 {
		return Candle{}, fmt.Errorf("candle has invalid time %d", ts)
	}
	if high < low {
		return Candle{}, fmt.Errorf("candle at %d has high %v below low %v", ts, high, low)
	}
	if open <= 0 || high <= 0 || low <= 0 || close <= 0 {
		return Candle{}, fmt.Errorf("candle at %d has non-positive price", ts)
	}
	if volume < 0 {
		return Candle{}, fmt.Errorf("candle at %d has negative volume %v", ts, volume)
	}
	return Candle{Time: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}, nil
}

// TypicalPrice returns (high+low+close)/3, the price used by anchored VWAP.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// PointTime returns the candle's open time for live-merge ordering.
func (c Candle) PointTime() int64 { return c.Time }

// CandleUpdate is a processed candle tagged with the symbol it belongs to.
// Closed set reports whether the bar's interval has ended; an open bar is a
// revision of the in-progress interval.
type CandleUpdate struct {
	Symbol string `json:"symbol"`
	Closed bool   `json:"closed"`
	Candle Candle `json:"candle"`
}

// VolumePoint is the volume histogram value derived from a candle.
type VolumePoint struct {
	Symbol string  `json:"symbol"`
	Time   int64   `json:"time"`
	Value  float64 `json:"value"`
}

// PointTime returns the point's time for live-merge ordering.
func (p VolumePoint) PointTime() int64 { return p.Time }
