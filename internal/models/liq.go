package models

import (
	"fmt"
	"time"
)

// Side identifies the direction of the position that was liquidated.
type Side string

const (
	SideLong  Side = "Long"
	SideShort Side = "Short"
)

// RawLiquidationMessage represents a raw liquidation payload captured from an
// exchange specific stream. It keeps the raw JSON payload together with
// metadata that allows downstream processors to route the event appropriately.
type RawLiquidationMessage struct {
	Exchange  string
	Symbol    string
	Market    string
	Data      []byte
	Timestamp time.Time
}

// LiquidationEvent is a normalized forced-closure trade record. Value is
// always Quantity*Price; the invariant is enforced at construction and never
// recomputed downstream.
type LiquidationEvent struct {
	ID       string  `json:"id"`
	Symbol   string  `json:"symbol"`
	Time     int64   `json:"time"` // epoch seconds
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
}

// NewLiquidationEvent validates the raw fields and derives the notional value.
func NewLiquidationEvent(id, symbol string, ts int64, side Side, quantity, price float64) (LiquidationEvent, error) {
	if symbol == "" {
		return LiquidationEvent{}, fmt.Errorf("liquidation event missing symbol")
	}
	if ts <= 0 {
		return LiquidationEvent{}, fmt.Errorf("liquidation event for %s has invalid time %d", symbol, ts)
	}
	if side != SideLong && side != SideShort {
		return LiquidationEvent{}, fmt.Errorf("liquidation event for %s has unknown side %q", symbol, side)
	}
	if quantity <= 0 || price <= 0 {
		return LiquidationEvent{}, fmt.Errorf("liquidation event for %s has non-positive quantity/price (%v, %v)", symbol, quantity, price)
	}
	return LiquidationEvent{
		ID:       id,
		Symbol:   symbol,
		Time:     ts,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Value:    quantity * price,
	}, nil
}

// BatchLiquidationMessage groups normalized events for the archive writer.
type BatchLiquidationMessage struct {
	BatchID     string             `json:"batch_id"`
	Exchange    string             `json:"exchange"`
	Symbol      string             `json:"symbol"`
	Market      string             `json:"market"`
	Entries     []LiquidationEvent `json:"entries"`
	RecordCount int                `json:"record_count"`
	Timestamp   time.Time          `json:"timestamp"`
	ProcessedAt time.Time          `json:"processed_at"`
}
