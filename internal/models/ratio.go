package models

import "time"

// RawRatioMessage holds a single top long/short position ratio observation.
type RawRatioMessage struct {
	Exchange       string
	Symbol         string
	Market         string
	LongShortRatio float64
	LongAccount    float64
	ShortAccount   float64
	Timestamp      time.Time
	Payload        []byte
}

// PositionRatioPoint is the chart-facing top long/short position ratio value.
type PositionRatioPoint struct {
	Symbol         string  `json:"symbol"`
	Time           int64   `json:"time"`
	LongShortRatio float64 `json:"longShortRatio"`
	LongAccount    float64 `json:"longAccount"`
	ShortAccount   float64 `json:"shortAccount"`
}

// PointTime returns the point's time for live-merge ordering.
func (p PositionRatioPoint) PointTime() int64 { return p.Time }
