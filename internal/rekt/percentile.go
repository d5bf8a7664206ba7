package rekt

import "sort"

// PercentileOf returns the rank-based percentile of v against a sorted
// ascending reference list: 100 * (index of the first element >= v) / len.
// Ties share the percentile of the first matching rank. When no element is
// >= v the percentile is 100, which keeps the function monotonic and total.
// An empty reference list yields 0.
func PercentileOf(v float64, sortedAsc []float64) float64 {
	if len(sortedAsc) == 0 {
		return 0
	}
	idx := sort.SearchFloat64s(sortedAsc, v)
	return float64(idx) / float64(len(sortedAsc)) * 100
}

// AggregateValues extracts the aggregate values of the groups, sorted
// ascending, for use as a percentile reference list.
func AggregateValues(groups []IntervalGroup) []float64 {
	values := make([]float64, len(groups))
	for i, g := range groups {
		values[i] = g.AggregateValue
	}
	sort.Float64s(values)
	return values
}

// Classify keeps the groups whose aggregate-value percentile lies strictly
// inside (low, high). The reference list is built from all input groups; the
// caller recomputes percentiles over the filtered subset for coloring, so the
// two reference lists must not be conflated. Input order is preserved.
func Classify(groups []IntervalGroup, low, high float64) []IntervalGroup {
	if len(groups) == 0 {
		return nil
	}
	sorted := AggregateValues(groups)
	kept := make([]IntervalGroup, 0, len(groups))
	for _, g := range groups {
		p := PercentileOf(g.AggregateValue, sorted)
		if p > low && p < high {
			kept = append(kept, g)
		}
	}
	return kept
}
