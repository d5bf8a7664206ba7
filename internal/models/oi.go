package models

import "time"

// RawOIMessage represents a single open interest observation captured from an
// exchange specific stream. The structure keeps both the parsed metric and the
// original payload so downstream consumers can persist rich context.
type RawOIMessage struct {
	Exchange  string
	Symbol    string
	Market    string
	Value     float64
	ValueUSD  float64
	Timestamp time.Time
	Payload   []byte
}

// OpenInterestPoint is the chart-facing open interest series value.
type OpenInterestPoint struct {
	Symbol string  `json:"symbol"`
	Time   int64   `json:"time"`
	Value  float64 `json:"value"`
}

// PointTime returns the point's time for live-merge ordering.
func (p OpenInterestPoint) PointTime() int64 { return p.Time }
