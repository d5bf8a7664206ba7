package chart

import (
	"testing"

	appconfig "rektflow/config"
	"rektflow/internal/models"
	"rektflow/internal/rekt"
)

func testState(t *testing.T) *State {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Chart.Interval = "1m"
	cfg.Chart.HistoryLimit = 100
	cfg.Chart.PercentileRange = []float64{0, 100}
	cfg.Chart.SmoothingPeriod = 1
	cfg.Chart.Pivot.High.LeftLen = 1
	cfg.Chart.Pivot.High.RightLen = 1

	state, err := NewState(cfg, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return state
}

func stateEvent(t *testing.T, ts int64, side models.Side, qty, price float64) models.LiquidationEvent {
	t.Helper()
	evt, err := models.NewLiquidationEvent("", "BTCUSDT", ts, side, qty, price)
	if err != nil {
		t.Fatalf("NewLiquidationEvent: %v", err)
	}
	return evt
}

func stateCandle(t *testing.T, ts int64, high, low, close float64) models.CandleUpdate {
	t.Helper()
	c, err := models.NewCandle(ts, low, high, low, close, 1)
	if err != nil {
		t.Fatalf("NewCandle: %v", err)
	}
	return models.CandleUpdate{Symbol: "BTCUSDT", Candle: c}
}

func TestApplyEventSynthesizesMarkers(t *testing.T) {
	state := testState(t)
	state.ApplyEvent(stateEvent(t, 100, models.SideLong, 1, 10))
	state.ApplyEvent(stateEvent(t, 200, models.SideShort, 2, 20))

	markers := state.Markers("BTCUSDT")
	if len(markers) == 0 {
		t.Fatal("expected markers after applying events")
	}
	for i := 1; i < len(markers); i++ {
		if markers[i].Time < markers[i-1].Time {
			t.Fatalf("markers out of order: %+v", markers)
		}
	}
}

func TestApplyCandleStaleDrop(t *testing.T) {
	state := testState(t)
	state.ApplyCandle(stateCandle(t, 120, 11, 9, 10))
	state.ApplyCandle(stateCandle(t, 60, 12, 8, 9))

	candles := state.Candles("BTCUSDT")
	if len(candles) != 1 || candles[0].Time != 120 {
		t.Fatalf("stale candle should be dropped: %+v", candles)
	}
}

func TestApplyCandleRevisesOpenBar(t *testing.T) {
	state := testState(t)
	state.ApplyCandle(stateCandle(t, 120, 11, 9, 10))
	state.ApplyCandle(stateCandle(t, 120, 13, 9, 12))

	candles := state.Candles("BTCUSDT")
	if len(candles) != 1 {
		t.Fatalf("equal-time candle should replace, not append: %+v", candles)
	}
	if candles[0].Close != 12 {
		t.Fatalf("revision should win: %+v", candles[0])
	}

	volume := state.Volume("BTCUSDT")
	if len(volume) != 1 {
		t.Fatalf("volume series should track the candle series: %+v", volume)
	}
}

func TestPivotsRecomputedFromCandles(t *testing.T) {
	state := testState(t)
	state.ApplyCandle(stateCandle(t, 60, 10, 9, 10))
	state.ApplyCandle(stateCandle(t, 120, 15, 9, 14))
	state.ApplyCandle(stateCandle(t, 180, 11, 9, 10))

	pivots := state.Pivots("BTCUSDT")
	if len(pivots.Highs) != 1 || pivots.Highs[0] != 1 {
		t.Fatalf("expected pivot high at index 1: %+v", pivots)
	}
}

func TestPivotWindowsActIndependently(t *testing.T) {
	state := testState(t)
	state.config.Chart.Pivot.High = appconfig.PivotWindowConfig{LeftLen: 10, RightLen: 10}
	state.config.Chart.Pivot.Low = appconfig.PivotWindowConfig{LeftLen: 1, RightLen: 1}

	// A three-candle V: the low window qualifies index 1, the high window is
	// wider than the whole series.
	state.ApplyCandle(stateCandle(t, 60, 11, 10, 10))
	state.ApplyCandle(stateCandle(t, 120, 6, 5, 6))
	state.ApplyCandle(stateCandle(t, 180, 11, 10, 10))

	pivots := state.Pivots("BTCUSDT")
	if len(pivots.Lows) != 1 || pivots.Lows[0] != 1 {
		t.Fatalf("low window should detect the V bottom: %+v", pivots)
	}
	if len(pivots.Highs) != 0 {
		t.Fatalf("high window exceeds the series, no highs expected: %+v", pivots)
	}
}

func TestSeedEventsNotifiesAnchors(t *testing.T) {
	state := testState(t)
	updates, cancel := state.Subscribe()
	defer cancel()

	state.SeedEvents("BTCUSDT", []models.LiquidationEvent{
		stateEvent(t, 60, models.SideLong, 1, 10),
	})

	seen := map[string]bool{}
	for len(updates) > 0 {
		seen[(<-updates).Series] = true
	}
	if !seen[SeriesMarkers] || !seen[SeriesAnchors] {
		t.Fatalf("backfill should refresh markers and anchors, got %v", seen)
	}
}

func TestEventsCappedWithoutCandles(t *testing.T) {
	state := testState(t)
	state.config.Chart.HistoryLimit = 1
	for i := 1; i <= 3*eventsPerBarCap; i++ {
		state.ApplyEvent(stateEvent(t, int64(60*i), models.SideLong, 1, 10))
	}

	state.mu.RLock()
	got := len(state.symbols["BTCUSDT"].events)
	state.mu.RUnlock()
	if got != eventsPerBarCap {
		t.Fatalf("event history should be capped without candles: %d events", got)
	}
}

func TestCreateAnchorTracksCandles(t *testing.T) {
	state := testState(t)
	state.ApplyCandle(stateCandle(t, 60, 10, 9, 10))
	state.ApplyCandle(stateCandle(t, 120, 12, 10, 11))

	anchor, err := state.CreateAnchor("BTCUSDT", 60, rekt.KindVWAP, "#fff", 2)
	if err != nil {
		t.Fatalf("CreateAnchor: %v", err)
	}
	if len(anchor.Points) != 2 {
		t.Fatalf("anchor should cover the candle history: %+v", anchor.Points)
	}

	// A new candle must flow into the anchored series on the next merge.
	state.ApplyCandle(stateCandle(t, 180, 13, 11, 12))
	anchors := state.Anchors("BTCUSDT")
	if len(anchors) != 1 || len(anchors[0].Points) != 3 {
		t.Fatalf("anchor should be recomputed on candle arrival: %+v", anchors)
	}
}

func TestCreateAnchorRejectsBadTime(t *testing.T) {
	state := testState(t)
	if _, err := state.CreateAnchor("BTCUSDT", 0, rekt.KindVWAP, "#fff", 1); err == nil {
		t.Fatal("expected error for non-positive anchor time")
	}
}

func TestRemoveAnchor(t *testing.T) {
	state := testState(t)
	anchor, err := state.CreateAnchor("BTCUSDT", 60, rekt.KindVWAP, "#fff", 1)
	if err != nil {
		t.Fatalf("CreateAnchor: %v", err)
	}
	if !state.RemoveAnchor("BTCUSDT", anchor.ID) {
		t.Fatal("remove should succeed")
	}
	if state.RemoveAnchor("BTCUSDT", anchor.ID) {
		t.Fatal("second remove should fail")
	}
}

func TestAnchorTopMarkers(t *testing.T) {
	state := testState(t)
	state.ApplyEvent(stateEvent(t, 60, models.SideLong, 1, 10))
	state.ApplyEvent(stateEvent(t, 120, models.SideLong, 10, 10))
	state.ApplyEvent(stateEvent(t, 180, models.SideLong, 5, 10))

	created := state.AnchorTopMarkers("BTCUSDT", rekt.KindALWAP, 2)
	if len(created) != 2 {
		t.Fatalf("expected two anchors, got %d", len(created))
	}
	// The largest bucket (value 100 at t=120) must rank first.
	if created[0].AnchorTime != 120 {
		t.Fatalf("top anchor should sit at the largest marker: %+v", created[0])
	}
}

func TestHigherTimeframeMarkersUseTripledBuckets(t *testing.T) {
	state := testState(t)
	state.ApplyEvent(stateEvent(t, 90, models.SideLong, 1, 10))
	state.ApplyEvent(stateEvent(t, 330, models.SideLong, 2, 12))
	state.ApplyEvent(stateEvent(t, 630, models.SideLong, 5, 12))

	// The smallest bucket sits at percentile 0 and is filtered out; the
	// other two 5m buckets survive.
	markers := state.HigherTimeframeMarkers("BTCUSDT")
	if len(markers) != 2 {
		t.Fatalf("expected two surviving 5m buckets: %+v", markers)
	}
	for _, m := range markers {
		if m.Time%300 != 0 {
			t.Fatalf("marker time %d is not aligned to the 5m overlay", m.Time)
		}
	}
}

func TestCombinedIndicatorSmoothed(t *testing.T) {
	state := testState(t)
	state.ApplyCandle(stateCandle(t, 60, 10, 9, 10))
	state.ApplyEvent(stateEvent(t, 60, models.SideLong, 1, 20))

	points := state.CombinedIndicator("BTCUSDT", 60)
	if len(points) == 0 {
		t.Fatal("expected combined indicator points")
	}
}

func TestHistoryLimitTrimsCandles(t *testing.T) {
	state := testState(t)
	state.config.Chart.HistoryLimit = 3
	for i := 1; i <= 5; i++ {
		state.ApplyCandle(stateCandle(t, int64(60*i), 11, 9, 10))
	}
	candles := state.Candles("BTCUSDT")
	if len(candles) != 3 {
		t.Fatalf("history limit not enforced: %d candles", len(candles))
	}
	if candles[0].Time != 180 {
		t.Fatalf("oldest candles should be trimmed: %+v", candles)
	}
}
