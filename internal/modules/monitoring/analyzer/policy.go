package analyzer

// Policy holds the comfort, noise and rain breakpoints. Pollutant bounds
// come from the health thresholds instead.
type Policy struct {
	TrendThreshold float64 `json:"trend_threshold"`

	TempCritical float64 `json:"temp_critical"`
	TempWarnHigh float64 `json:"temp_warn_high"`
	TempWarnLow  float64 `json:"temp_warn_low"`

	HumidityCriticalHigh float64 `json:"humidity_critical_high"`
	HumidityCriticalLow  float64 `json:"humidity_critical_low"`
	HumidityWarnHigh     float64 `json:"humidity_warn_high"`
	HumidityWarnLow      float64 `json:"humidity_warn_low"`

	NoiseModerate float64 `json:"noise_moderate"`
	NoiseLoud     float64 `json:"noise_loud"`
	NoiseVeryLoud float64 `json:"noise_very_loud"`

	RainLight    float64 `json:"rain_light"`
	RainModerate float64 `json:"rain_moderate"`
	RainHeavy    float64 `json:"rain_heavy"`
}

func DefaultPolicy() Policy {
	return Policy{
		TrendThreshold:       0.5,
		TempCritical:         30,
		TempWarnHigh:         28,
		TempWarnLow:          15,
		HumidityCriticalHigh: 80,
		HumidityCriticalLow:  20,
		HumidityWarnHigh:     70,
		HumidityWarnLow:      30,
		NoiseModerate:        60,
		NoiseLoud:            75,
		NoiseVeryLoud:        85,
		RainLight:            0.1,
		RainModerate:         2.5,
		RainHeavy:            7.5,
	}
}

func (p Policy) temperatureStatus(avg float64) ComfortStatus {
	switch {
	case avg > p.TempCritical:
		return Critical
	case avg > p.TempWarnHigh || avg < p.TempWarnLow:
		return Warning
	default:
		return Normal
	}
}

func (p Policy) humidityStatus(avg float64) ComfortStatus {
	switch {
	case avg > p.HumidityCriticalHigh || avg < p.HumidityCriticalLow:
		return Critical
	case avg > p.HumidityWarnHigh || avg < p.HumidityWarnLow:
		return Warning
	default:
		return Normal
	}
}

func (p Policy) noiseStatus(avg float64) NoiseStatus {
	switch {
	case avg > p.NoiseVeryLoud:
		return VeryLoud
	case avg > p.NoiseLoud:
		return Loud
	case avg > p.NoiseModerate:
		return NoiseModerate
	default:
		return Quiet
	}
}

func (p Policy) rainStatus(avg float64) RainStatus {
	switch {
	case avg > p.RainHeavy:
		return RainHeavy
	case avg > p.RainModerate:
		return RainModerate
	case avg > p.RainLight:
		return RainLight
	default:
		return RainNone
	}
}
