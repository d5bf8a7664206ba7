package rekt

import (
	"testing"

	"rektflow/internal/models"
)

func TestNewMarkerSideMapping(t *testing.T) {
	long := NewMarker("BTCUSDT", IntervalGroup{IntervalStart: 60, Side: models.SideLong, AggregateValue: 1234.5, VolumeWeightedPrice: 100, EventCount: 1}, 50)
	if long.Position != PositionBelowBar || long.Shape != ShapeArrowUp {
		t.Errorf("long marker mapping: %+v", long)
	}
	if long.Label != "1234.50" {
		t.Errorf("label format: %q", long.Label)
	}

	short := NewMarker("BTCUSDT", IntervalGroup{IntervalStart: 60, Side: models.SideShort, AggregateValue: 10, VolumeWeightedPrice: 100, EventCount: 1}, 50)
	if short.Position != PositionAboveBar || short.Shape != ShapeArrowDown {
		t.Errorf("short marker mapping: %+v", short)
	}
}

func TestColorSpectrumEndpoints(t *testing.T) {
	cases := []struct {
		percentile float64
		isLong     bool
		want       string
	}{
		{0, true, "rgb(72, 119, 72)"},
		{100, true, "rgb(0, 60, 183)"},
		{0, false, "rgb(204, 204, 0)"},
		{100, false, "rgb(153, 0, 0)"},
	}
	for _, tc := range cases {
		if got := colorForPercentile(tc.percentile, tc.isLong); got != tc.want {
			t.Errorf("colorForPercentile(%v, %v) = %q, want %q", tc.percentile, tc.isLong, got, tc.want)
		}
	}
}

func synthConfig() MarkerConfig {
	return MarkerConfig{
		Symbol:          "BTCUSDT",
		IntervalSeconds: 60,
		PercentileLow:   0,
		PercentileHigh:  100,
	}
}

func TestSynthesizeMarkersOrderingAndBounds(t *testing.T) {
	// Unsorted input across three buckets and both sides.
	events := []models.LiquidationEvent{
		mustEvent(t, 250, models.SideShort, 5, 80),
		mustEvent(t, 100, models.SideLong, 2, 10),
		mustEvent(t, 130, models.SideLong, 3, 10),
		mustEvent(t, 110, models.SideShort, 4, 20),
	}
	markers, err := SynthesizeMarkers(events, synthConfig())
	if err != nil {
		t.Fatalf("SynthesizeMarkers: %v", err)
	}
	if len(markers) > 4 {
		t.Fatalf("marker count exceeds group count: %d", len(markers))
	}
	for i := 1; i < len(markers); i++ {
		if markers[i].Time < markers[i-1].Time {
			t.Fatalf("markers out of time order: %+v", markers)
		}
	}
}

func TestSynthesizeMarkersPercentileFilter(t *testing.T) {
	// Five long buckets with distinct values; the range (20, 80) must keep
	// only interior percentiles.
	events := []models.LiquidationEvent{
		mustEvent(t, 60, models.SideLong, 1, 100),
		mustEvent(t, 120, models.SideLong, 2, 100),
		mustEvent(t, 180, models.SideLong, 3, 100),
		mustEvent(t, 240, models.SideLong, 4, 100),
		mustEvent(t, 300, models.SideLong, 5, 100),
	}
	cfg := synthConfig()
	cfg.PercentileLow = 20
	cfg.PercentileHigh = 80
	markers, err := SynthesizeMarkers(events, cfg)
	if err != nil {
		t.Fatalf("SynthesizeMarkers: %v", err)
	}
	// Percentiles over the full set are 0,20,40,60,80; only 40 and 60 are
	// strictly inside.
	if len(markers) != 2 {
		t.Fatalf("expected two markers, got %d: %+v", len(markers), markers)
	}
	if markers[0].Time != 180 || markers[1].Time != 240 {
		t.Fatalf("unexpected surviving buckets: %+v", markers)
	}
}

func TestSynthesizeMarkersEmptyInput(t *testing.T) {
	markers, err := SynthesizeMarkers(nil, synthConfig())
	if err != nil {
		t.Fatalf("SynthesizeMarkers: %v", err)
	}
	if len(markers) != 0 {
		t.Fatalf("expected no markers, got %+v", markers)
	}
}

func TestSynthesizeMarkersTopCount(t *testing.T) {
	events := []models.LiquidationEvent{
		mustEvent(t, 60, models.SideLong, 1, 10),
		mustEvent(t, 120, models.SideLong, 2, 10),
		mustEvent(t, 180, models.SideLong, 3, 10),
		mustEvent(t, 240, models.SideLong, 4, 10),
	}
	cfg := synthConfig()
	cfg.TopMarkersCount = 2
	markers, err := SynthesizeMarkers(events, cfg)
	if err != nil {
		t.Fatalf("SynthesizeMarkers: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("top count not applied: %d markers", len(markers))
	}
	// The smallest bucket (t=60) is gone before the cut; selection among the
	// survivors is by time order, not by value.
	if markers[0].Time != 120 || markers[1].Time != 180 {
		t.Fatalf("top markers should be the earliest survivors: %+v", markers)
	}
}

func trendMarkers(prices []float64) []Marker {
	out := make([]Marker, len(prices))
	for i, p := range prices {
		out[i] = Marker{
			Time:     int64(60 * (i + 1)),
			Position: PositionAboveBar,
			Shape:    ShapeArrowDown,
			Price:    p,
			Value:    100,
		}
	}
	return out
}

func TestApplyTrendLookbackSeed(t *testing.T) {
	rule := TrendRule{Enabled: true, Lookback: 2, TrendColor: "red", FadeColor: "gray"}
	out := applyTrend(trendMarkers([]float64{10, 9, 8, 7}), rule, true)
	// Indexes 0..2 are inside the seed window and always trend.
	for i := 0; i <= 2; i++ {
		if out[i].Color != "red" {
			t.Errorf("marker %d should be seeded as trend: %+v", i, out[i])
		}
	}
	// Index 3 (price 7) is not above every one of the previous two.
	if out[3].Color != "gray" || out[3].Position != PositionInBar || out[3].Shape != ShapeCircle {
		t.Errorf("marker 3 should be faded and downgraded: %+v", out[3])
	}
}

func TestApplyTrendConsecutiveHighs(t *testing.T) {
	rule := TrendRule{Enabled: true, Lookback: 1, TrendColor: "red", FadeColor: "gray"}
	out := applyTrend(trendMarkers([]float64{10, 11, 12, 11, 13}), rule, true)
	if out[2].Color != "red" {
		t.Errorf("new high should be trend: %+v", out[2])
	}
	if out[3].Color != "gray" {
		t.Errorf("lower high should fade: %+v", out[3])
	}
	if out[4].Color != "red" {
		t.Errorf("recovery above the window should be trend again: %+v", out[4])
	}
}

func TestApplyTrendBelowBarDirection(t *testing.T) {
	rule := TrendRule{Enabled: true, Lookback: 1, TrendColor: "blue", FadeColor: "gray"}
	markers := trendMarkers([]float64{100, 90, 95})
	for i := range markers {
		markers[i].Position = PositionBelowBar
		markers[i].Shape = ShapeArrowUp
	}
	out := applyTrend(markers, rule, false)
	if out[2].Color != "gray" {
		t.Errorf("higher low on the long side should fade: %+v", out[2])
	}
}

func TestApplyTrendHideFaded(t *testing.T) {
	rule := TrendRule{Enabled: true, Lookback: 1, TrendColor: "red", HideFaded: true}
	out := applyTrend(trendMarkers([]float64{10, 11, 9}), rule, true)
	if out[2].Color != TransparentColor {
		t.Errorf("faded marker should be transparent: %+v", out[2])
	}
}

func TestApplyTrendDisabled(t *testing.T) {
	in := trendMarkers([]float64{10, 9, 8})
	out := applyTrend(in, TrendRule{Enabled: false}, true)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("disabled rule must not modify markers: %+v vs %+v", out[i], in[i])
		}
	}
}
