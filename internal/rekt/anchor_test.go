package rekt

import (
	"testing"

	"rektflow/internal/models"
)

func mustCandle(t *testing.T, ts int64, open, high, low, close, volume float64) models.Candle {
	t.Helper()
	c, err := models.NewCandle(ts, open, high, low, close, volume)
	if err != nil {
		t.Fatalf("NewCandle: %v", err)
	}
	return c
}

func TestVWAPSingleCandleAtAnchor(t *testing.T) {
	c := mustCandle(t, 1000, 10, 12, 9, 11, 5)
	points := VWAPSeries([]models.Candle{c}, 1000)
	if len(points) != 1 {
		t.Fatalf("expected one point, got %d", len(points))
	}
	if points[0].Value == nil {
		t.Fatal("anchored candle should produce a value")
	}
	if *points[0].Value != c.TypicalPrice() {
		t.Fatalf("single-candle VWAP: got %v want %v", *points[0].Value, c.TypicalPrice())
	}
}

func TestVWAPWhitespaceBeforeAnchor(t *testing.T) {
	candles := []models.Candle{
		mustCandle(t, 100, 10, 11, 9, 10, 2),
		mustCandle(t, 160, 10, 11, 9, 10, 2),
		mustCandle(t, 220, 10, 11, 9, 10, 2),
	}
	points := VWAPSeries(candles, 160)
	if len(points) != 3 {
		t.Fatalf("expected a point per candle, got %d", len(points))
	}
	if points[0].Value != nil {
		t.Fatalf("pre-anchor point must be whitespace: %+v", points[0])
	}
	if points[1].Value == nil || points[2].Value == nil {
		t.Fatalf("post-anchor points must carry values: %+v", points)
	}
}

func TestVWAPZeroVolumeIsWhitespace(t *testing.T) {
	candles := []models.Candle{
		mustCandle(t, 100, 10, 11, 9, 10, 0),
		mustCandle(t, 160, 10, 11, 9, 10, 4),
	}
	points := VWAPSeries(candles, 100)
	if points[0].Value != nil {
		t.Fatalf("zero cumulative volume must yield whitespace: %+v", points[0])
	}
	if points[1].Value == nil {
		t.Fatalf("second point should be defined: %+v", points[1])
	}
}

func TestVWAPCumulative(t *testing.T) {
	c1 := mustCandle(t, 100, 10, 12, 8, 10, 2) // typical 10
	c2 := mustCandle(t, 160, 10, 22, 14, 18, 6) // typical 18
	points := VWAPSeries([]models.Candle{c1, c2}, 100)
	want := (10.0*2 + 18.0*6) / 8
	if *points[1].Value != want {
		t.Fatalf("cumulative VWAP: got %v want %v", *points[1].Value, want)
	}
}

func alwapMarker(ts int64, position MarkerPosition, price, value float64) Marker {
	return Marker{Time: ts, Position: position, Price: price, Value: value}
}

func TestALWAPFoldsByValueWeight(t *testing.T) {
	markers := []Marker{
		alwapMarker(100, PositionAboveBar, 10, 100),
		alwapMarker(160, PositionAboveBar, 20, 300),
	}
	points := ALWAPSeries(markers, 100, "")
	if len(points) != 2 {
		t.Fatalf("expected two points, got %d", len(points))
	}
	if *points[0].Value != 10 {
		t.Fatalf("first point: got %v want 10", *points[0].Value)
	}
	want := (10.0*100 + 20.0*300) / 400
	if *points[1].Value != want {
		t.Fatalf("second point: got %v want %v", *points[1].Value, want)
	}
}

func TestALWAPDeduplicatesLastWins(t *testing.T) {
	markers := []Marker{
		alwapMarker(100, PositionAboveBar, 10, 100),
		alwapMarker(100, PositionAboveBar, 30, 200), // revision of the same interval
	}
	points := ALWAPSeries(markers, 0, "")
	if len(points) != 1 {
		t.Fatalf("duplicate timestamps must collapse: %+v", points)
	}
	if *points[0].Value != 30 {
		t.Fatalf("last marker should win: got %v want 30", *points[0].Value)
	}
}

func TestALWAPSideFilter(t *testing.T) {
	markers := []Marker{
		alwapMarker(100, PositionBelowBar, 10, 100),
		alwapMarker(160, PositionAboveBar, 99, 900),
	}
	points := ALWAPSeries(markers, 0, PositionBelowBar)
	if len(points) != 1 {
		t.Fatalf("side filter failed: %+v", points)
	}
	if *points[0].Value != 10 {
		t.Fatalf("filtered fold: got %v want 10", *points[0].Value)
	}

	both := ALWAPSeries(markers, 0, "")
	if len(both) != 2 {
		t.Fatalf("nil side filter must keep both sides: %+v", both)
	}
}

func TestALWAPSkipsPreAnchor(t *testing.T) {
	markers := []Marker{
		alwapMarker(50, PositionAboveBar, 500, 500),
		alwapMarker(100, PositionAboveBar, 10, 100),
	}
	points := ALWAPSeries(markers, 100, "")
	if len(points) != 1 || *points[0].Value != 10 {
		t.Fatalf("pre-anchor markers must not contribute: %+v", points)
	}
}

func TestEngineDuplicateAnchor(t *testing.T) {
	engine := NewEngine()
	a := engine.CreateAnchor(1000, KindVWAP, "#fff", 2)
	b := engine.CreateAnchor(1000, KindVWAP, "#000", 3)
	if a != b {
		t.Fatal("duplicate (anchorTime, kind) must return the existing anchor")
	}
	c := engine.CreateAnchor(1000, KindALWAP, "#000", 3)
	if c == a {
		t.Fatal("different kind at the same time is a distinct anchor")
	}
	if len(engine.Anchors()) != 2 {
		t.Fatalf("expected two anchors, got %d", len(engine.Anchors()))
	}
}

func TestEngineRemoveAnchor(t *testing.T) {
	engine := NewEngine()
	a := engine.CreateAnchor(1000, KindVWAP, "#fff", 2)
	if !engine.RemoveAnchor(a.ID) {
		t.Fatal("remove should report success")
	}
	if engine.RemoveAnchor(a.ID) {
		t.Fatal("second remove should report failure")
	}
	if engine.HasAnchorAt(1000) {
		t.Fatal("anchor should be gone")
	}
}

func TestEngineRecomputeAndExtend(t *testing.T) {
	engine := NewEngine()
	candles := []models.Candle{
		mustCandle(t, 100, 10, 12, 8, 10, 2),
		mustCandle(t, 160, 10, 22, 14, 18, 6),
	}

	a := engine.CreateAnchor(100, KindVWAP, "#fff", 2)
	engine.Recompute(a, candles, nil)
	if len(a.Points) != 2 {
		t.Fatalf("recompute should fill points: %+v", a.Points)
	}

	candles = append(candles, mustCandle(t, 220, 18, 20, 16, 19, 2))
	last, ok := engine.Extend(a, candles, nil)
	if !ok {
		t.Fatal("extend should produce a tail point")
	}
	if last.Time != 220 || last.Value == nil {
		t.Fatalf("unexpected tail point: %+v", last)
	}
	if len(a.Points) != 3 {
		t.Fatalf("extend should refresh the series: %d points", len(a.Points))
	}
}

func TestEngineRecomputeALWAPKinds(t *testing.T) {
	engine := NewEngine()
	markers := []Marker{
		alwapMarker(100, PositionBelowBar, 10, 100),
		alwapMarker(160, PositionAboveBar, 20, 200),
	}

	long := engine.CreateAnchor(0, KindALWAPLong, "#0f0", 1)
	engine.Recompute(long, nil, markers)
	if len(long.Points) != 1 || *long.Points[0].Value != 10 {
		t.Fatalf("ALWAPLong should fold only belowBar markers: %+v", long.Points)
	}

	short := engine.CreateAnchor(0, KindALWAPShort, "#f00", 1)
	engine.Recompute(short, nil, markers)
	if len(short.Points) != 1 || *short.Points[0].Value != 20 {
		t.Fatalf("ALWAPShort should fold only aboveBar markers: %+v", short.Points)
	}
}

func TestCombinedSeries(t *testing.T) {
	candles := []models.Candle{mustCandle(t, 100, 10, 12, 8, 10, 2)} // typical 10
	markers := []Marker{
		alwapMarker(100, PositionAboveBar, 20, 100),
		alwapMarker(160, PositionAboveBar, 30, 100),
	}
	points := CombinedSeries(candles, markers, 100, "")
	if len(points) != 2 {
		t.Fatalf("expected union of timestamps: %+v", points)
	}
	// At t=100 both series are defined: mean of 10 and 20.
	if *points[0].Value != 15 {
		t.Fatalf("combined value at shared timestamp: got %v want 15", *points[0].Value)
	}
	// At t=160 only ALWAP exists.
	if *points[1].Value != 25 {
		t.Fatalf("combined value at ALWAP-only timestamp: got %v want 25", *points[1].Value)
	}
}

func TestSmoothSeries(t *testing.T) {
	points := []SeriesPoint{
		whitespacePoint(60),
		valuePoint(120, 10),
		valuePoint(180, 20),
		valuePoint(240, 30),
	}
	smoothed := SmoothSeries(points, 2)
	if smoothed[0].Value != nil {
		t.Fatalf("whitespace must pass through: %+v", smoothed[0])
	}
	if *smoothed[1].Value != 10 {
		t.Fatalf("first defined point: got %v want 10", *smoothed[1].Value)
	}
	if *smoothed[2].Value != 15 {
		t.Fatalf("second point: got %v want 15", *smoothed[2].Value)
	}
	if *smoothed[3].Value != 25 {
		t.Fatalf("third point: got %v want 25", *smoothed[3].Value)
	}
}

func TestSmoothSeriesPeriodOne(t *testing.T) {
	points := []SeriesPoint{valuePoint(60, 10), valuePoint(120, 30)}
	smoothed := SmoothSeries(points, 1)
	if *smoothed[0].Value != 10 || *smoothed[1].Value != 30 {
		t.Fatalf("period 1 must be identity: %+v", smoothed)
	}
}
