package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/trend"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

var base = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func nominal(n int, mutate func(i int, r *types.Reading)) []types.Reading {
	out := make([]types.Reading, n)
	for i := range out {
		r := types.Reading{
			DeviceID:       "dev-1",
			Temperature:    22,
			Humidity:       50,
			CO:             1,
			CO2:            420,
			NH3:            2,
			LPG:            100,
			Smoke:          5,
			Alcohol:        3,
			SoundIntensity: 40,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if mutate != nil {
			mutate(i, &r)
		}
		out[i] = r
	}
	return out
}

func TestAnalyze_Empty(t *testing.T) {
	got := Analyze(nil, health.DefaultThresholds(), DefaultPolicy())
	assert.True(t, got.InsufficientData)
	assert.Equal(t, insufficientSummary, got.Summary)
	assert.Zero(t, got.Count)
}

func TestAnalyze_Nominal(t *testing.T) {
	got := Analyze(nominal(10, nil), health.DefaultThresholds(), DefaultPolicy())

	assert.False(t, got.InsufficientData)
	assert.Equal(t, Normal, got.Temperature.Status)
	assert.Equal(t, Normal, got.Humidity.Status)
	assert.Equal(t, trend.Stable, got.Temperature.Trend)
	assert.Equal(t, AirGood, got.AirQuality.Status)
	assert.Empty(t, got.AirQuality.Pollutants)
	assert.Equal(t, Quiet, got.Noise.Status)
	assert.Equal(t, RainNone, got.Rain.Status)
	assert.Equal(t,
		"Environment analysis shows temperature is 22.0°C (stable) and humidity is 50.0% (stable). "+
			"Air quality is good with no significant pollutants detected. "+
			"Noise level is quiet at 40.0 dB. No rain detected.",
		got.Summary)
}

func TestAnalyze_HighCO2(t *testing.T) {
	readings := nominal(10, func(_ int, r *types.Reading) { r.CO2 = 1200 })
	got := Analyze(readings, health.DefaultThresholds(), DefaultPolicy())

	assert.GreaterOrEqual(t, airRank[got.AirQuality.Status], airRank[AirModerate])
	assert.Contains(t, got.AirQuality.Pollutants, "High CO2")
	assert.Contains(t, got.Summary, "Air quality is moderate with High CO2.")
}

func TestAnalyze_EscalationNeverLowers(t *testing.T) {
	readings := nominal(4, func(_ int, r *types.Reading) {
		r.CO = 12
		r.Alcohol = 60
		r.LPG = 1500
	})
	got := Analyze(readings, health.DefaultThresholds(), DefaultPolicy())

	assert.Equal(t, AirHazardous, got.AirQuality.Status)
	assert.Equal(t, []string{"High CO", "High LPG", "High Alcohol vapor"}, got.AirQuality.Pollutants)
}

func TestAnalyze_UsesConfiguredThresholds(t *testing.T) {
	th, err := health.DefaultThresholds().Merge(map[types.Field]health.Tier{
		types.FieldCO2: {Moderate: 800, Unhealthy: 2000, Dangerous: 5000},
	})
	require.NoError(t, err)

	readings := nominal(3, func(_ int, r *types.Reading) { r.CO2 = 900 })
	assert.Empty(t, Analyze(readings, health.DefaultThresholds(), DefaultPolicy()).AirQuality.Pollutants)
	assert.Equal(t, []string{"High CO2"}, Analyze(readings, th, DefaultPolicy()).AirQuality.Pollutants)
}

func TestAnalyze_HalfSplitTrend(t *testing.T) {
	// oldest five at 20°C, newest five at 24°C; input deliberately unordered
	readings := nominal(10, func(i int, r *types.Reading) {
		if i >= 5 {
			r.Temperature = 24
			r.Humidity = 40
		}
	})
	readings[0], readings[9] = readings[9], readings[0]

	got := Analyze(readings, health.DefaultThresholds(), DefaultPolicy())
	assert.Equal(t, trend.Rising, got.Temperature.Trend)
	assert.Equal(t, trend.Falling, got.Humidity.Trend)
}

func TestAnalyze_SingleReadingIsStable(t *testing.T) {
	got := Analyze(nominal(1, nil), health.DefaultThresholds(), DefaultPolicy())
	assert.Equal(t, trend.Stable, got.Temperature.Trend)
	assert.Equal(t, trend.Stable, got.Humidity.Trend)
}

func TestAnalyze_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(int, *types.Reading)
		check  func(t *testing.T, r Result)
	}{
		{
			name:   "hot",
			mutate: func(_ int, r *types.Reading) { r.Temperature = 31 },
			check:  func(t *testing.T, r Result) { assert.Equal(t, Critical, r.Temperature.Status) },
		},
		{
			name:   "cold",
			mutate: func(_ int, r *types.Reading) { r.Temperature = 10 },
			check:  func(t *testing.T, r Result) { assert.Equal(t, Warning, r.Temperature.Status) },
		},
		{
			name:   "humid warning stays on humidity",
			mutate: func(_ int, r *types.Reading) { r.Humidity = 75 },
			check: func(t *testing.T, r Result) {
				assert.Equal(t, Warning, r.Humidity.Status)
				assert.Equal(t, Normal, r.Temperature.Status)
			},
		},
		{
			name:   "dry",
			mutate: func(_ int, r *types.Reading) { r.Humidity = 10 },
			check:  func(t *testing.T, r Result) { assert.Equal(t, Critical, r.Humidity.Status) },
		},
		{
			name:   "very loud",
			mutate: func(_ int, r *types.Reading) { r.SoundIntensity = 90 },
			check:  func(t *testing.T, r Result) { assert.Equal(t, VeryLoud, r.Noise.Status) },
		},
		{
			name:   "loud",
			mutate: func(_ int, r *types.Reading) { r.SoundIntensity = 80 },
			check:  func(t *testing.T, r Result) { assert.Equal(t, Loud, r.Noise.Status) },
		},
		{
			name:   "moderate rain",
			mutate: func(_ int, r *types.Reading) { r.RainIntensity = 3 },
			check: func(t *testing.T, r Result) {
				assert.Equal(t, RainModerate, r.Rain.Status)
				assert.Contains(t, r.Summary, "Rain intensity is moderate at 3.0 mm.")
			},
		},
		{
			name:   "heavy rain",
			mutate: func(_ int, r *types.Reading) { r.RainIntensity = 9 },
			check:  func(t *testing.T, r Result) { assert.Equal(t, RainHeavy, r.Rain.Status) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, Analyze(nominal(6, tt.mutate), health.DefaultThresholds(), DefaultPolicy()))
		})
	}
}
