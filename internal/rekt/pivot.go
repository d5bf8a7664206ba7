package rekt

import "rektflow/internal/models"

// PivotPoints holds the indexes of local extrema in a candle series.
type PivotPoints struct {
	Highs []int `json:"highs"`
	Lows  []int `json:"lows"`
}

// FindPivotPoints scans the candles for local extrema over the given window
// lengths. Index i is a pivot high when its high is strictly greater than
// every high in the leftLen candles before it and not exceeded by any high in
// the rightLen candles after it; the tie rule is deliberately asymmetric
// (strict left, non-strict right) so that the first bar of a flat top wins.
// Lows mirror the rule with inverted comparisons. Series shorter than
// leftLen+rightLen+1 yield empty results.
func FindPivotPoints(candles []models.Candle, leftLen, rightLen int) PivotPoints {
	pivots := PivotPoints{Highs: []int{}, Lows: []int{}}
	if leftLen < 0 || rightLen < 0 || len(candles) <= leftLen+rightLen {
		return pivots
	}

	for i := leftLen; i < len(candles)-rightLen; i++ {
		isHigh := true
		isLow := true

		for j := i - leftLen; j < i; j++ {
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh || isLow {
			for j := i + 1; j <= i+rightLen; j++ {
				if candles[j].High > candles[i].High {
					isHigh = false
				}
				if candles[j].Low < candles[i].Low {
					isLow = false
				}
				if !isHigh && !isLow {
					break
				}
			}
		}

		if isHigh {
			pivots.Highs = append(pivots.Highs, i)
		}
		if isLow {
			pivots.Lows = append(pivots.Lows, i)
		}
	}
	return pivots
}
