package rekt

import (
	"testing"

	"rektflow/internal/models"
)

func TestPercentileOf(t *testing.T) {
	sorted := []float64{10, 20, 20, 30, 40}
	cases := []struct {
		v    float64
		want float64
	}{
		{5, 0},
		{10, 0},
		{15, 20},
		{20, 20},  // ties share the first matching rank
		{30, 60},
		{40, 80},
		{50, 100}, // above every element
	}
	for _, tc := range cases {
		if got := PercentileOf(tc.v, sorted); got != tc.want {
			t.Errorf("PercentileOf(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestPercentileOfMonotonic(t *testing.T) {
	sorted := []float64{1, 3, 3, 7, 9, 12}
	prev := -1.0
	for v := 0.0; v <= 15; v += 0.5 {
		p := PercentileOf(v, sorted)
		if p < prev {
			t.Fatalf("percentile decreased at v=%v: %v < %v", v, p, prev)
		}
		prev = p
	}
}

func TestPercentileOfEmpty(t *testing.T) {
	if got := PercentileOf(42, nil); got != 0 {
		t.Fatalf("empty reference list: got %v want 0", got)
	}
}

func TestClassifyBoundsAreExclusive(t *testing.T) {
	groups := make([]IntervalGroup, 0, 10)
	for i := 0; i < 10; i++ {
		groups = append(groups, IntervalGroup{
			IntervalStart:  int64(60 * (i + 1)),
			Side:           models.SideLong,
			AggregateValue: float64((i + 1) * 100),
			EventCount:     1,
		})
	}

	kept := Classify(groups, 20, 80)
	if len(kept) == 0 {
		t.Fatal("expected groups inside the range")
	}
	sorted := AggregateValues(groups)
	for _, g := range kept {
		p := PercentileOf(g.AggregateValue, sorted)
		if p <= 20 || p >= 80 {
			t.Errorf("group with percentile %v leaked through exclusive bounds", p)
		}
	}
	if len(kept) >= len(groups) {
		t.Errorf("classify should filter: kept %d of %d", len(kept), len(groups))
	}
}

func TestClassifyEmpty(t *testing.T) {
	if kept := Classify(nil, 0, 100); kept != nil {
		t.Fatalf("expected nil for empty input, got %v", kept)
	}
}

func TestClassifyPreservesOrder(t *testing.T) {
	groups := []IntervalGroup{
		{IntervalStart: 60, Side: models.SideLong, AggregateValue: 500, EventCount: 1},
		{IntervalStart: 120, Side: models.SideShort, AggregateValue: 300, EventCount: 1},
		{IntervalStart: 180, Side: models.SideLong, AggregateValue: 400, EventCount: 1},
	}
	kept := Classify(groups, 0, 101)
	for i := 1; i < len(kept); i++ {
		if kept[i].IntervalStart < kept[i-1].IntervalStart {
			t.Fatalf("classify reordered groups: %+v", kept)
		}
	}
}
