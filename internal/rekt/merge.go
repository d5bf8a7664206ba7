package rekt

// Timestamped is any series point carrying an epoch-seconds timestamp.
type Timestamped interface {
	PointTime() int64
}

// MergeOutcome reports what Merge did with the incoming point.
type MergeOutcome int

const (
	// MergeAppended means the point extended the series.
	MergeAppended MergeOutcome = iota
	// MergeReplaced means the point revised the in-progress tail.
	MergeReplaced
	// MergeStale means the point was older than the tail and dropped.
	MergeStale
)

// Merge reconciles one incoming live point with an ordered series. A point
// strictly older than the tail is dropped; a point at the tail's exact time
// replaces it, which is how an in-progress interval is revised; anything
// newer is appended. Each parallel series (candles, volume, open interest,
// position ratio, every anchored indicator) must be merged independently so
// that each keeps its own last-time-seen state. The caller is responsible
// for surfacing a warning on MergeStale.
func Merge[T Timestamped](series []T, incoming T) ([]T, MergeOutcome) {
	if n := len(series); n > 0 {
		last := series[n-1].PointTime()
		if incoming.PointTime() < last {
			return series, MergeStale
		}
		if incoming.PointTime() == last {
			series[n-1] = incoming
			return series, MergeReplaced
		}
	}
	return append(series, incoming), MergeAppended
}
