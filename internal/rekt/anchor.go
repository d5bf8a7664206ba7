package rekt

import (
	"sort"

	"github.com/google/uuid"

	"rektflow/internal/models"
)

// AnchorKind selects which cumulative average an anchored series computes.
type AnchorKind string

const (
	KindVWAP       AnchorKind = "VWAP"
	KindALWAP      AnchorKind = "ALWAP"
	KindALWAPLong  AnchorKind = "ALWAPLong"
	KindALWAPShort AnchorKind = "ALWAPShort"
)

// SeriesPoint is one value of a chart line series. A nil Value is a
// whitespace point: the chart renders a gap, not zero.
type SeriesPoint struct {
	Time  int64    `json:"time"`
	Value *float64 `json:"value,omitempty"`
}

// PointTime implements Timestamped.
func (p SeriesPoint) PointTime() int64 { return p.Time }

func valuePoint(ts int64, v float64) SeriesPoint {
	return SeriesPoint{Time: ts, Value: &v}
}

func whitespacePoint(ts int64) SeriesPoint {
	return SeriesPoint{Time: ts}
}

// AnchoredSeries is a cumulative-average indicator anchored at a point in
// time. Points is owned exclusively by the Engine that created the series;
// recomputes replace the slice wholesale rather than mutating it in place.
type AnchoredSeries struct {
	ID         string        `json:"id"`
	AnchorTime int64         `json:"anchorTime"`
	Kind       AnchorKind    `json:"kind"`
	Color      string        `json:"color"`
	LineWidth  int           `json:"lineWidth"`
	Points     []SeriesPoint `json:"points"`
}

// sideFilter maps an anchor kind to the marker position it folds over.
// The empty position means both sides.
func (k AnchorKind) sideFilter() MarkerPosition {
	switch k {
	case KindALWAPLong:
		return PositionBelowBar
	case KindALWAPShort:
		return PositionAboveBar
	default:
		return ""
	}
}

// Engine owns every anchored series for one chart. All methods must be
// called from the chart's single event-processing goroutine.
type Engine struct {
	anchors []*AnchoredSeries
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{}
}

// CreateAnchor registers a new anchored series. A second anchor with the same
// (anchorTime, kind) is a no-op returning the existing series.
func (e *Engine) CreateAnchor(anchorTime int64, kind AnchorKind, color string, lineWidth int) *AnchoredSeries {
	for _, a := range e.anchors {
		if a.AnchorTime == anchorTime && a.Kind == kind {
			return a
		}
	}
	a := &AnchoredSeries{
		ID:         uuid.New().String(),
		AnchorTime: anchorTime,
		Kind:       kind,
		Color:      color,
		LineWidth:  lineWidth,
	}
	e.anchors = append(e.anchors, a)
	return a
}

// RemoveAnchor destroys the series with the given id.
func (e *Engine) RemoveAnchor(id string) bool {
	for i, a := range e.anchors {
		if a.ID == id {
			e.anchors = append(e.anchors[:i], e.anchors[i+1:]...)
			return true
		}
	}
	return false
}

// Anchors returns the live series in creation order.
func (e *Engine) Anchors() []*AnchoredSeries {
	out := make([]*AnchoredSeries, len(e.anchors))
	copy(out, e.anchors)
	return out
}

// HasAnchorAt reports whether any series is anchored at the given time.
func (e *Engine) HasAnchorAt(anchorTime int64) bool {
	for _, a := range e.anchors {
		if a.AnchorTime == anchorTime {
			return true
		}
	}
	return false
}

// Recompute replaces the series' points from the full source dataset.
func (e *Engine) Recompute(a *AnchoredSeries, candles []models.Candle, markers []Marker) {
	switch a.Kind {
	case KindVWAP:
		a.Points = VWAPSeries(candles, a.AnchorTime)
	default:
		a.Points = ALWAPSeries(markers, a.AnchorTime, a.Kind.sideFilter())
	}
}

// Extend incrementally updates the series after new live data arrived. The
// cumulative sums only depend on data at or after the anchor, so the tail is
// recomputed from the anchor index forward and the final point is returned
// for push consumers. A full recompute would be equally correct; only the
// amount of work differs.
func (e *Engine) Extend(a *AnchoredSeries, candles []models.Candle, markers []Marker) (SeriesPoint, bool) {
	e.Recompute(a, candles, markers)
	if len(a.Points) == 0 {
		return SeriesPoint{}, false
	}
	return a.Points[len(a.Points)-1], true
}

// VWAPSeries computes the anchored volume-weighted average price. Candles
// strictly before the anchor emit whitespace placeholders; from the anchor
// on, each point is cumulative(typicalPrice*volume) / cumulative(volume),
// whitespace while the cumulative volume is still zero.
func VWAPSeries(candles []models.Candle, anchorTime int64) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(candles))
	var cumulativeTPV, cumulativeVolume float64

	for _, candle := range candles {
		if candle.Time < anchorTime {
			points = append(points, whitespacePoint(candle.Time))
			continue
		}
		cumulativeTPV += candle.TypicalPrice() * candle.Volume
		cumulativeVolume += candle.Volume
		if cumulativeVolume > 0 {
			points = append(points, valuePoint(candle.Time, cumulativeTPV/cumulativeVolume))
		} else {
			points = append(points, whitespacePoint(candle.Time))
		}
	}
	return points
}

// ALWAPSeries computes the anchored liquidation-weighted average price over
// markers at or after the anchor, optionally restricted to one side. Markers
// sharing a timestamp are de-duplicated last-wins before folding, so a
// revised marker replaces rather than adds.
func ALWAPSeries(markers []Marker, anchorTime int64, side MarkerPosition) []SeriesPoint {
	selected := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if m.Time < anchorTime {
			continue
		}
		if side != "" && m.Position != side {
			continue
		}
		selected = append(selected, m)
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Time < selected[j].Time })

	deduped := selected[:0]
	for _, m := range selected {
		if n := len(deduped); n > 0 && deduped[n-1].Time == m.Time {
			deduped[n-1] = m
			continue
		}
		deduped = append(deduped, m)
	}

	points := make([]SeriesPoint, 0, len(deduped))
	var cumulativeValue, cumulativePV float64
	for _, m := range deduped {
		cumulativeValue += m.Value
		cumulativePV += m.Price * m.Value
		if cumulativeValue > 0 {
			points = append(points, valuePoint(m.Time, cumulativePV/cumulativeValue))
		} else {
			points = append(points, whitespacePoint(m.Time))
		}
	}
	return points
}

// CombinedSeries merges an anchored VWAP and ALWAP over the union of their
// timestamps. Where both are defined the value is their mean; where only one
// is defined its value passes through; where neither is, the point stays
// whitespace.
func CombinedSeries(candles []models.Candle, markers []Marker, anchorTime int64, side MarkerPosition) []SeriesPoint {
	vwap := VWAPSeries(candles, anchorTime)
	alwap := ALWAPSeries(markers, anchorTime, side)

	type pair struct {
		vwap, alwap *float64
	}
	merged := make(map[int64]pair, len(vwap)+len(alwap))
	for _, p := range vwap {
		entry := merged[p.Time]
		entry.vwap = p.Value
		merged[p.Time] = entry
	}
	for _, p := range alwap {
		entry := merged[p.Time]
		entry.alwap = p.Value
		merged[p.Time] = entry
	}

	times := make([]int64, 0, len(merged))
	for ts := range merged {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	points := make([]SeriesPoint, 0, len(times))
	for _, ts := range times {
		entry := merged[ts]
		switch {
		case entry.vwap != nil && entry.alwap != nil:
			points = append(points, valuePoint(ts, (*entry.vwap+*entry.alwap)/2))
		case entry.vwap != nil:
			points = append(points, valuePoint(ts, *entry.vwap))
		case entry.alwap != nil:
			points = append(points, valuePoint(ts, *entry.alwap))
		default:
			points = append(points, whitespacePoint(ts))
		}
	}
	return points
}

// SmoothSeries applies a trailing simple moving average over the defined
// values of a series. Whitespace points pass through untouched and do not
// contribute to neighbouring windows.
func SmoothSeries(points []SeriesPoint, period int) []SeriesPoint {
	if period <= 1 {
		out := make([]SeriesPoint, len(points))
		copy(out, points)
		return out
	}

	out := make([]SeriesPoint, 0, len(points))
	for i, p := range points {
		if p.Value == nil {
			out = append(out, p)
			continue
		}
		var sum float64
		var count int
		for j := i - period + 1; j <= i; j++ {
			if j < 0 || points[j].Value == nil {
				continue
			}
			sum += *points[j].Value
			count++
		}
		if count > 0 {
			out = append(out, valuePoint(p.Time, sum/float64(count)))
		} else {
			out = append(out, whitespacePoint(p.Time))
		}
	}
	return out
}
