package rekt

import (
	"testing"

	"rektflow/internal/models"
)

func TestMergeAppendsNewer(t *testing.T) {
	series := []SeriesPoint{valuePoint(60, 1), valuePoint(120, 2)}
	series, outcome := Merge(series, valuePoint(180, 3))
	if outcome != MergeAppended {
		t.Fatalf("expected append, got %v", outcome)
	}
	if len(series) != 3 || series[2].Time != 180 {
		t.Fatalf("unexpected series tail: %+v", series)
	}
}

func TestMergeReplacesEqualTime(t *testing.T) {
	series := []SeriesPoint{valuePoint(60, 1), valuePoint(120, 2)}
	series, outcome := Merge(series, valuePoint(120, 9))
	if outcome != MergeReplaced {
		t.Fatalf("expected replace, got %v", outcome)
	}
	if len(series) != 2 {
		t.Fatalf("replace must not change length: %d", len(series))
	}
	if *series[1].Value != 9 {
		t.Fatalf("tail should carry the revised value: %+v", series[1])
	}
}

func TestMergeIdempotentOnEqualTime(t *testing.T) {
	series := []SeriesPoint{valuePoint(60, 1)}
	incoming := valuePoint(120, 2)
	series, _ = Merge(series, incoming)
	series, outcome := Merge(series, incoming)
	if outcome != MergeReplaced {
		t.Fatalf("second merge of the same point should replace, got %v", outcome)
	}
	if len(series) != 2 {
		t.Fatalf("merging the same point twice must not grow the series: %d", len(series))
	}
}

func TestMergeDropsStale(t *testing.T) {
	series := []SeriesPoint{valuePoint(60, 1), valuePoint(120, 2)}
	series, outcome := Merge(series, valuePoint(90, 5))
	if outcome != MergeStale {
		t.Fatalf("expected stale drop, got %v", outcome)
	}
	if len(series) != 2 || series[1].Time != 120 {
		t.Fatalf("stale point must leave the series untouched: %+v", series)
	}
}

func TestMergeIntoEmpty(t *testing.T) {
	var series []SeriesPoint
	series, outcome := Merge(series, valuePoint(60, 1))
	if outcome != MergeAppended || len(series) != 1 {
		t.Fatalf("merge into empty series should append: %v %+v", outcome, series)
	}
}

func TestMergeCandles(t *testing.T) {
	series := []models.Candle{
		mustCandle(t, 60, 10, 11, 9, 10, 1),
		mustCandle(t, 120, 10, 11, 9, 10, 1),
	}

	// An in-progress candle at the tail time is a revision.
	revised := mustCandle(t, 120, 10, 13, 9, 12, 3)
	series, outcome := Merge(series, revised)
	if outcome != MergeReplaced || series[1].Close != 12 {
		t.Fatalf("equal-time candle should replace the tail: %v %+v", outcome, series[1])
	}

	// A closed interval rolls forward with an append.
	series, outcome = Merge(series, mustCandle(t, 180, 12, 14, 11, 13, 2))
	if outcome != MergeAppended || len(series) != 3 {
		t.Fatalf("newer candle should append: %v %d", outcome, len(series))
	}
}

func TestMergeOpenInterest(t *testing.T) {
	series := []models.OpenInterestPoint{
		{Symbol: "BTCUSDT", Time: 60, Value: 100},
	}
	series, outcome := Merge(series, models.OpenInterestPoint{Symbol: "BTCUSDT", Time: 30, Value: 90})
	if outcome != MergeStale || len(series) != 1 {
		t.Fatalf("stale OI point should be dropped: %v %+v", outcome, series)
	}
}
