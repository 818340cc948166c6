// Package analyzer derives categorical environment statuses and a readable
// summary from a batch of readings.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/stats"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/trend"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

type ComfortStatus string

const (
	Normal   ComfortStatus = "normal"
	Warning  ComfortStatus = "warning"
	Critical ComfortStatus = "critical"
)

type AirQuality string

const (
	AirGood      AirQuality = "good"
	AirModerate  AirQuality = "moderate"
	AirPoor      AirQuality = "poor"
	AirUnhealthy AirQuality = "unhealthy"
	AirHazardous AirQuality = "hazardous"
)

var airRank = map[AirQuality]int{
	AirGood:      0,
	AirModerate:  1,
	AirPoor:      2,
	AirUnhealthy: 3,
	AirHazardous: 4,
}

// escalate never lowers the current status.
func (a AirQuality) escalate(to AirQuality) AirQuality {
	if airRank[to] > airRank[a] {
		return to
	}
	return a
}

type NoiseStatus string

const (
	Quiet         NoiseStatus = "quiet"
	NoiseModerate NoiseStatus = "moderate"
	Loud          NoiseStatus = "loud"
	VeryLoud      NoiseStatus = "very loud"
)

type RainStatus string

const (
	RainNone     RainStatus = "none"
	RainLight    RainStatus = "light"
	RainModerate RainStatus = "moderate"
	RainHeavy    RainStatus = "heavy"
)

type Climate struct {
	Average float64         `json:"average"`
	Trend   trend.Direction `json:"trend"`
	Status  ComfortStatus   `json:"status"`
}

type Air struct {
	Status     AirQuality `json:"status"`
	Pollutants []string   `json:"pollutants"`
}

type Noise struct {
	Average float64     `json:"average"`
	Status  NoiseStatus `json:"status"`
}

type Rain struct {
	Average float64    `json:"average"`
	Status  RainStatus `json:"status"`
}

type Result struct {
	InsufficientData bool    `json:"insufficient_data"`
	Count            int     `json:"count"`
	Temperature      Climate `json:"temperature"`
	Humidity         Climate `json:"humidity"`
	AirQuality       Air     `json:"air_quality"`
	Noise            Noise   `json:"noise"`
	Rain             Rain    `json:"rain"`
	Summary          string  `json:"summary"`
}

const insufficientSummary = "Insufficient data for environment analysis."

type pollutantRule struct {
	field types.Field
	label string
	to    AirQuality
}

// Evaluated in this order; labels appear in the summary in the same order.
var pollutantRules = []pollutantRule{
	{types.FieldCO2, "High CO2", AirModerate},
	{types.FieldCO, "High CO", AirHazardous},
	{types.FieldNH3, "High NH3", AirPoor},
	{types.FieldLPG, "High LPG", AirUnhealthy},
	{types.FieldSmoke, "Smoke detected", AirPoor},
	{types.FieldAlcohol, "High Alcohol vapor", AirModerate},
}

// Analyze never fails; an empty batch yields InsufficientData. Pollutants
// are flagged when their mean reaches the moderate tier of th.
func Analyze(readings []types.Reading, th health.Thresholds, p Policy) Result {
	if len(readings) == 0 {
		return Result{
			InsufficientData: true,
			AirQuality:       Air{Status: AirGood, Pollutants: []string{}},
			Summary:          insufficientSummary,
		}
	}

	sorted := trend.SortDescending(readings)
	mid := len(sorted) / 2
	recent, older := sorted[:mid], sorted[mid:]

	mean := func(rs []types.Reading, f types.Field) float64 {
		return stats.Mean(types.Values(rs, f))
	}
	halfTrend := func(f types.Field) trend.Direction {
		if len(recent) == 0 || len(older) == 0 {
			return trend.Stable
		}
		return trend.ClassifyDelta(mean(recent, f), mean(older, f), p.TrendThreshold)
	}

	tempAvg := mean(sorted, types.FieldTemperature)
	humAvg := mean(sorted, types.FieldHumidity)
	soundAvg := mean(sorted, types.FieldSoundIntensity)
	rainAvg := mean(sorted, types.FieldRainIntensity)

	air := Air{Status: AirGood, Pollutants: []string{}}
	for _, rule := range pollutantRules {
		tier, ok := th[rule.field]
		if !ok {
			continue
		}
		if mean(sorted, rule.field) >= tier.Moderate {
			air.Pollutants = append(air.Pollutants, rule.label)
			air.Status = air.Status.escalate(rule.to)
		}
	}

	res := Result{
		Count: len(sorted),
		Temperature: Climate{
			Average: tempAvg,
			Trend:   halfTrend(types.FieldTemperature),
			Status:  p.temperatureStatus(tempAvg),
		},
		Humidity: Climate{
			Average: humAvg,
			Trend:   halfTrend(types.FieldHumidity),
			Status:  p.humidityStatus(humAvg),
		},
		AirQuality: air,
		Noise:      Noise{Average: soundAvg, Status: p.noiseStatus(soundAvg)},
		Rain:       Rain{Average: rainAvg, Status: p.rainStatus(rainAvg)},
	}
	res.Summary = summarize(res)
	return res
}

func summarize(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Environment analysis shows temperature is %.1f°C (%s) and humidity is %.1f%% (%s). ",
		r.Temperature.Average, r.Temperature.Trend, r.Humidity.Average, r.Humidity.Trend)

	if len(r.AirQuality.Pollutants) > 0 {
		fmt.Fprintf(&b, "Air quality is %s with %s. ", r.AirQuality.Status, strings.Join(r.AirQuality.Pollutants, ", "))
	} else {
		b.WriteString("Air quality is good with no significant pollutants detected. ")
	}

	fmt.Fprintf(&b, "Noise level is %s at %.1f dB. ", r.Noise.Status, r.Noise.Average)

	if r.Rain.Status != RainNone {
		fmt.Fprintf(&b, "Rain intensity is %s at %.1f mm.", r.Rain.Status, r.Rain.Average)
	} else {
		b.WriteString("No rain detected.")
	}
	return b.String()
}
