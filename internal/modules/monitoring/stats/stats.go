package stats

import (
	"math"
	"slices"
)

type Summary struct {
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
	Count    int     `json:"count"`
}

// Description extends Summary with spread measures.
type Description struct {
	Summary
	Range                  float64 `json:"range"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	P25                    float64 `json:"p25"`
	P75                    float64 `json:"p75"`
	P95                    float64 `json:"p95"`
}

// Summarize returns the zero Summary for empty input. Variance is the
// population variance.
func Summarize(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	variance := sq / float64(n)

	return Summary{
		Mean:     mean,
		Median:   median(sorted),
		Min:      sorted[0],
		Max:      sorted[n-1],
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Count:    n,
	}
}

func Describe(values []float64) Description {
	s := Summarize(values)
	if s.Count == 0 {
		return Description{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var cv float64
	if s.Mean != 0 {
		cv = s.StdDev / s.Mean * 100
	}
	return Description{
		Summary:                s,
		Range:                  s.Max - s.Min,
		CoefficientOfVariation: cv,
		P25:                    percentileSorted(sorted, 25),
		P75:                    percentileSorted(sorted, 75),
		P95:                    percentileSorted(sorted, 95),
	}
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Percentile interpolates linearly between the closest ranks at
// p/100*(n-1). p is clamped to [0, 100].
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	p = math.Max(0, math.Min(100, p))
	idx := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
