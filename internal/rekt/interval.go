package rekt

import (
	"fmt"
	"regexp"
	"strconv"

	"rektflow/internal/models"
)

var intervalPattern = regexp.MustCompile(`^(\d+)([a-zA-Z]+)$`)

// Seconds per interval unit. Months are fixed at 30 days.
var intervalUnits = map[string]int64{
	"m": 60,
	"h": 60 * 60,
	"d": 24 * 60 * 60,
	"w": 7 * 24 * 60 * 60,
	"M": 30 * 24 * 60 * 60,
}

// ParseInterval converts an interval string such as "1m", "4h" or "1w" into
// seconds. The unit table is fixed: m=60, h=3600, d=86400, w=604800,
// M=2592000. Unrecognized strings yield ErrInvalidInterval.
func ParseInterval(interval string) (int64, error) {
	match := intervalPattern.FindStringSubmatch(interval)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
	multiplier, ok := intervalUnits[match[2]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidInterval, interval)
	}
	return value * multiplier, nil
}

// TripleInterval maps an interval to the higher timeframe the dashboard uses
// for its secondary marker overlay. Unknown intervals pass through unchanged.
func TripleInterval(interval string) string {
	switch interval {
	case "1m":
		return "5m"
	case "5m":
		return "15m"
	case "15m":
		return "1h"
	case "30m":
		return "2h"
	case "1h":
		return "4h"
	case "4h":
		return "12h"
	default:
		return interval
	}
}

// GroupKey identifies one (interval start, side) bucket.
type GroupKey struct {
	IntervalStart int64
	Side          models.Side
}

// IntervalGroup is the fold of all liquidation events sharing a GroupKey.
//
// VolumeWeightedPrice is a running event-count-weighted average,
// (prev*count + price) / (count+1). It deliberately ignores the event value
// as the weight because the source system averages this way; see the package
// tests for the documented order sensitivity this introduces.
type IntervalGroup struct {
	IntervalStart       int64       `json:"intervalStart"`
	Side                models.Side `json:"side"`
	AggregateValue      float64     `json:"aggregateValue"`
	VolumeWeightedPrice float64     `json:"volumeWeightedPrice"`
	EventCount          int         `json:"eventCount"`
}

// GroupByInterval buckets events into (interval start, side) groups.
// AggregateValue is additive and therefore order independent;
// VolumeWeightedPrice is order sensitive because of its running-average
// formula. The input is not mutated.
func GroupByInterval(events []models.LiquidationEvent, intervalSeconds int64) (map[GroupKey]IntervalGroup, error) {
	ordered, err := GroupInTimeOrder(events, intervalSeconds)
	if err != nil {
		return nil, err
	}
	groups := make(map[GroupKey]IntervalGroup, len(ordered))
	for _, g := range ordered {
		groups[GroupKey{IntervalStart: g.IntervalStart, Side: g.Side}] = g
	}
	return groups, nil
}

// GroupInTimeOrder buckets events like GroupByInterval but returns the groups
// in first-seen order, which for time-sorted input is ascending interval
// start. The percentile classifier relies on this ordering for its tie break.
func GroupInTimeOrder(events []models.LiquidationEvent, intervalSeconds int64) ([]IntervalGroup, error) {
	if intervalSeconds <= 0 {
		return nil, fmt.Errorf("%w: %d seconds", ErrInvalidInterval, intervalSeconds)
	}

	index := make(map[GroupKey]int, len(events))
	ordered := make([]IntervalGroup, 0, len(events))

	for _, event := range events {
		start := event.Time / intervalSeconds * intervalSeconds
		key := GroupKey{IntervalStart: start, Side: event.Side}

		if i, ok := index[key]; ok {
			g := &ordered[i]
			g.AggregateValue += event.Value
			g.VolumeWeightedPrice = (g.VolumeWeightedPrice*float64(g.EventCount) + event.Price) / float64(g.EventCount+1)
			g.EventCount++
			continue
		}

		index[key] = len(ordered)
		ordered = append(ordered, IntervalGroup{
			IntervalStart:       start,
			Side:                event.Side,
			AggregateValue:      event.Value,
			VolumeWeightedPrice: event.Price,
			EventCount:          1,
		})
	}

	return ordered, nil
}
