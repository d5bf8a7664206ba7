package processor

import (
	"testing"
	"time"

	"rektflow/internal/models"
)

func rawLiq(payload string) models.RawLiquidationMessage {
	return models.RawLiquidationMessage{
		Exchange:  "binance",
		Symbol:    "BTCUSDT",
		Market:    "liquidation",
		Data:      []byte(payload),
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestNormalizeBinanceLiqSellClosesLong(t *testing.T) {
	payload := `{"E":1700000000123,"o":{"s":"btcusdt","S":"SELL","o":"LIMIT","q":"0.5","p":"40000","T":1700000000456}}`
	evt, err := normalizeBinanceLiq(rawLiq(payload))
	if err != nil {
		t.Fatalf("normalizeBinanceLiq: %v", err)
	}
	if evt.Side != models.SideLong {
		t.Errorf("SELL force order should map to a long liquidation, got %s", evt.Side)
	}
	if evt.Symbol != "BTCUSDT" {
		t.Errorf("symbol should be uppercased: %q", evt.Symbol)
	}
	if evt.Time != 1700000000 {
		t.Errorf("time should be trade time in seconds: %d", evt.Time)
	}
	if evt.Value != 0.5*40000 {
		t.Errorf("value should be quantity*price: %v", evt.Value)
	}
}

func TestNormalizeBinanceLiqBuyClosesShort(t *testing.T) {
	payload := `{"E":1700000000123,"o":{"s":"ETHUSDT","S":"BUY","o":"LIMIT","q":"2","p":"2000","T":1700000000456}}`
	evt, err := normalizeBinanceLiq(rawLiq(payload))
	if err != nil {
		t.Fatalf("normalizeBinanceLiq: %v", err)
	}
	if evt.Side != models.SideShort {
		t.Errorf("BUY force order should map to a short liquidation, got %s", evt.Side)
	}
}

func TestNormalizeBinanceLiqMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"o":{"s":"BTCUSDT","S":"SELL","q":"bad","p":"40000","T":1}}`,
		`{"o":{"s":"BTCUSDT","S":"SELL","q":"1","p":"","T":1}}`,
		`{"o":{"s":"","S":"SELL","q":"1","p":"40000","T":1700000000000}}`,
		`{"o":{"s":"BTCUSDT","S":"SELL","q":"0","p":"40000","T":1700000000000}}`,
	}
	for _, payload := range cases {
		if _, err := normalizeBinanceLiq(rawLiq(payload)); err == nil {
			t.Errorf("expected error for payload %q", payload)
		}
	}
}

func TestNormalizeBinanceLiqFallsBackToEventTime(t *testing.T) {
	payload := `{"E":1700000000123,"o":{"s":"BTCUSDT","S":"SELL","q":"1","p":"40000"}}`
	evt, err := normalizeBinanceLiq(rawLiq(payload))
	if err != nil {
		t.Fatalf("normalizeBinanceLiq: %v", err)
	}
	if evt.Time != 1700000000 {
		t.Errorf("missing trade time should fall back to event time: %d", evt.Time)
	}
}
