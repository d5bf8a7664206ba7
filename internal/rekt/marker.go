package rekt

import (
	"fmt"
	"math"
	"sort"

	"rektflow/internal/models"
)

// MarkerPosition is the vertical placement of a marker relative to its bar.
type MarkerPosition string

const (
	PositionAboveBar MarkerPosition = "aboveBar"
	PositionBelowBar MarkerPosition = "belowBar"
	PositionInBar    MarkerPosition = "inBar"
)

// MarkerShape selects the glyph drawn for a marker.
type MarkerShape string

const (
	ShapeArrowUp   MarkerShape = "arrowUp"
	ShapeArrowDown MarkerShape = "arrowDown"
	ShapeCircle    MarkerShape = "circle"
)

// TransparentColor hides a marker without removing it from the series.
const TransparentColor = "transparent"

// Marker is one chart marker derived from an interval group. It is immutable
// once emitted. Value carries the numeric aggregate so indicator folds never
// have to re-parse Label.
type Marker struct {
	Symbol   string         `json:"symbol"`
	Time     int64          `json:"time"`
	Position MarkerPosition `json:"position"`
	Color    string         `json:"color"`
	Shape    MarkerShape    `json:"shape"`
	Label    string         `json:"text"`
	Price    float64        `json:"price"`
	Value    float64        `json:"value"`
}

// PointTime implements Timestamped.
func (m Marker) PointTime() int64 { return m.Time }

// TrendRule configures consecutive-extremum highlighting for one marker side.
type TrendRule struct {
	Enabled    bool
	Lookback   int
	TrendColor string
	FadeColor  string
	// HideFaded renders non-trend markers transparent instead of FadeColor.
	HideFaded bool
}

// MarkerConfig carries everything SynthesizeMarkers needs besides the events.
type MarkerConfig struct {
	Symbol          string
	IntervalSeconds int64
	PercentileLow   float64
	PercentileHigh  float64
	TrendAbove      TrendRule
	TrendBelow      TrendRule
	// TopMarkersCount limits the emitted markers, selected by time order
	// after filtering. Zero means unlimited.
	TopMarkersCount int
}

// NewMarker builds the marker for one classified group. Long liquidations sit
// below the bar with an upward arrow, shorts above with a downward arrow. The
// color is interpolated along the side's spectrum by percentile.
func NewMarker(symbol string, group IntervalGroup, percentile float64) Marker {
	position := PositionAboveBar
	shape := ShapeArrowDown
	if group.Side == models.SideLong {
		position = PositionBelowBar
		shape = ShapeArrowUp
	}
	return Marker{
		Symbol:   symbol,
		Time:     group.IntervalStart,
		Position: position,
		Color:    colorForPercentile(percentile, group.Side == models.SideLong),
		Shape:    shape,
		Label:    fmt.Sprintf("%.2f", group.AggregateValue),
		Price:    group.VolumeWeightedPrice,
		Value:    group.AggregateValue,
	}
}

// colorForPercentile interpolates along a fixed RGB spectrum: longs go from
// dark green to dark blue, shorts from dark yellow to dark red, as percentile
// runs 0 to 100.
func colorForPercentile(percentile float64, isLong bool) string {
	t := percentile / 100
	if isLong {
		r := math.Round(72 - t*72)
		g := math.Round(119 - t*59)
		b := math.Round(72 + t*111)
		return fmt.Sprintf("rgb(%d, %d, %d)", int(r), int(g), int(b))
	}
	r := math.Round(204 - t*51)
	g := math.Round(204 - t*204)
	return fmt.Sprintf("rgb(%d, %d, 0)", int(r), int(g))
}

// SynthesizeMarkers runs the full pipeline: sort events by time, bucket them
// into interval groups, keep the groups inside the percentile range, color
// the survivors by their percentile within the filtered subset, apply trend
// highlighting per side, and emit markers in ascending time order.
func SynthesizeMarkers(events []models.LiquidationEvent, cfg MarkerConfig) ([]Marker, error) {
	sorted := make([]models.LiquidationEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	groups, err := GroupInTimeOrder(sorted, cfg.IntervalSeconds)
	if err != nil {
		return nil, err
	}

	filtered := Classify(groups, cfg.PercentileLow, cfg.PercentileHigh)
	if len(filtered) == 0 {
		return nil, nil
	}

	// Percentiles for coloring come from the filtered subset, not from the
	// full group population used by Classify.
	filteredValues := AggregateValues(filtered)

	var above, below []Marker
	for _, g := range filtered {
		m := NewMarker(cfg.Symbol, g, PercentileOf(g.AggregateValue, filteredValues))
		if m.Position == PositionAboveBar {
			above = append(above, m)
		} else {
			below = append(below, m)
		}
	}

	above = applyTrend(above, cfg.TrendAbove, true)
	below = applyTrend(below, cfg.TrendBelow, false)

	markers := make([]Marker, 0, len(above)+len(below))
	markers = append(markers, above...)
	markers = append(markers, below...)
	sort.SliceStable(markers, func(i, j int) bool { return markers[i].Time < markers[j].Time })

	if cfg.TopMarkersCount > 0 && len(markers) > cfg.TopMarkersCount {
		markers = markers[:cfg.TopMarkersCount]
	}
	return markers, nil
}

// applyTrend walks one side's markers in time order. The first lookback+1
// markers always count as trend. After that a marker is trend only when its
// price is strictly more extreme (higher for aboveBar, lower for belowBar)
// than every marker in the preceding lookback-sized window. Non-trend markers
// are faded or hidden and downgraded to a neutral in-bar circle.
func applyTrend(markers []Marker, rule TrendRule, above bool) []Marker {
	if !rule.Enabled {
		return markers
	}

	out := make([]Marker, len(markers))
	for i, m := range markers {
		if i <= rule.Lookback {
			m.Color = rule.TrendColor
			out[i] = m
			continue
		}

		extreme := true
		for _, prev := range markers[i-rule.Lookback : i] {
			if above && m.Price <= prev.Price {
				extreme = false
				break
			}
			if !above && m.Price >= prev.Price {
				extreme = false
				break
			}
		}

		if extreme {
			m.Color = rule.TrendColor
			out[i] = m
			continue
		}

		if rule.HideFaded {
			m.Color = TransparentColor
		} else {
			m.Color = rule.FadeColor
		}
		m.Position = PositionInBar
		m.Shape = ShapeCircle
		out[i] = m
	}
	return out
}
