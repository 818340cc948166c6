package trend

import (
	"math"
	"slices"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

type Direction string

const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
	Stable  Direction = "stable"
)

// SlopeThreshold is the absolute per-sample slope below which a series is stable.
const SlopeThreshold = 0.1

type Point struct {
	Value         float64   `json:"value"`
	MovingAverage float64   `json:"moving_average"`
	Timestamp     time.Time `json:"timestamp"`
}

// MovingAverage computes a trailing mean for each reading of series in the
// order given. The window shrinks near the start of the series; a window
// below 1 is treated as 1.
func MovingAverage(series []types.Reading, field types.Field, window int) []Point {
	if window < 1 {
		window = 1
	}
	out := make([]Point, len(series))
	for i, r := range series {
		start := max(0, i-window+1)
		var sum float64
		for _, w := range series[start : i+1] {
			sum += field.Value(w)
		}
		out[i] = Point{
			Value:         field.Value(r),
			MovingAverage: sum / float64(i+1-start),
			Timestamp:     r.CreatedAt,
		}
	}
	return out
}

// Slope is the ordinary least squares slope of values against their index.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	var yMean float64
	for _, v := range values {
		yMean += v
	}
	yMean /= float64(n)

	var num, den float64
	for i, v := range values {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func ClassifySlope(values []float64) Direction {
	return fromDelta(Slope(values), SlopeThreshold)
}

// ClassifyDelta compares two aggregates, such as the means of the newer
// and older halves of a series.
func ClassifyDelta(recent, older, threshold float64) Direction {
	return fromDelta(recent-older, threshold)
}

func fromDelta(d, threshold float64) Direction {
	switch {
	case math.Abs(d) < threshold:
		return Stable
	case d > 0:
		return Rising
	default:
		return Falling
	}
}

// SortAscending returns a copy of readings ordered oldest first.
func SortAscending(readings []types.Reading) []types.Reading {
	out := slices.Clone(readings)
	slices.SortStableFunc(out, func(a, b types.Reading) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// SortDescending returns a copy of readings ordered newest first.
func SortDescending(readings []types.Reading) []types.Reading {
	out := slices.Clone(readings)
	slices.SortStableFunc(out, func(a, b types.Reading) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}
