package rekt

import (
	"testing"

	"rektflow/internal/models"
)

func pivotCandles(t *testing.T, highs, lows []float64) []models.Candle {
	t.Helper()
	if len(highs) != len(lows) {
		t.Fatal("highs and lows must have equal length")
	}
	candles := make([]models.Candle, len(highs))
	for i := range highs {
		candles[i] = mustCandle(t, int64(60*(i+1)), lows[i], highs[i], lows[i], highs[i], 1)
	}
	return candles
}

func TestFindPivotPointsBasic(t *testing.T) {
	candles := pivotCandles(t,
		[]float64{10, 12, 15, 12, 10},
		[]float64{9, 11, 14, 11, 9},
	)
	pivots := FindPivotPoints(candles, 2, 2)
	if len(pivots.Highs) != 1 || pivots.Highs[0] != 2 {
		t.Errorf("expected a single pivot high at index 2: %+v", pivots)
	}
	if len(pivots.Lows) != 0 {
		t.Errorf("no pivot low expected: %+v", pivots)
	}
}

func TestFindPivotPointsLow(t *testing.T) {
	candles := pivotCandles(t,
		[]float64{15, 13, 11, 13, 15},
		[]float64{14, 12, 10, 12, 14},
	)
	pivots := FindPivotPoints(candles, 2, 2)
	if len(pivots.Lows) != 1 || pivots.Lows[0] != 2 {
		t.Errorf("expected a single pivot low at index 2: %+v", pivots)
	}
	if len(pivots.Highs) != 0 {
		t.Errorf("no pivot high expected: %+v", pivots)
	}
}

func TestFindPivotPointsMonotonicHighsYieldNone(t *testing.T) {
	candles := pivotCandles(t,
		[]float64{10, 11, 12, 13, 14, 15, 16},
		[]float64{9, 10, 11, 12, 13, 14, 15},
	)
	pivots := FindPivotPoints(candles, 2, 2)
	if len(pivots.Highs) != 0 {
		t.Errorf("monotonically rising highs cannot form a pivot high: %+v", pivots.Highs)
	}
}

func TestFindPivotPointsFlatTopFirstBarWins(t *testing.T) {
	// Indexes 2 and 3 share the same high. The left comparison is strict and
	// the right is not, so only the earlier bar qualifies.
	candles := pivotCandles(t,
		[]float64{10, 12, 15, 15, 12, 10},
		[]float64{1, 1, 1, 1, 1, 1},
	)
	pivots := FindPivotPoints(candles, 2, 2)
	if len(pivots.Highs) != 1 || pivots.Highs[0] != 2 {
		t.Errorf("first bar of the flat top should win: %+v", pivots.Highs)
	}
}

func TestFindPivotPointsShortSeries(t *testing.T) {
	candles := pivotCandles(t,
		[]float64{10, 20, 10},
		[]float64{9, 19, 9},
	)
	pivots := FindPivotPoints(candles, 2, 2)
	if pivots.Highs == nil || pivots.Lows == nil {
		t.Fatal("short series must return initialized empty slices")
	}
	if len(pivots.Highs) != 0 || len(pivots.Lows) != 0 {
		t.Errorf("series shorter than the window cannot hold pivots: %+v", pivots)
	}
}

func TestFindPivotPointsNegativeWindow(t *testing.T) {
	candles := pivotCandles(t,
		[]float64{10, 20, 10},
		[]float64{9, 19, 9},
	)
	pivots := FindPivotPoints(candles, -1, 1)
	if len(pivots.Highs) != 0 || len(pivots.Lows) != 0 {
		t.Errorf("negative window lengths must yield empty results: %+v", pivots)
	}
}

func TestFindPivotPointsZeroWindows(t *testing.T) {
	// With both windows at zero every candle trivially qualifies both ways.
	candles := pivotCandles(t,
		[]float64{10, 20},
		[]float64{9, 19},
	)
	pivots := FindPivotPoints(candles, 0, 0)
	if len(pivots.Highs) != 2 || len(pivots.Lows) != 2 {
		t.Errorf("zero windows should mark every index: %+v", pivots)
	}
}
