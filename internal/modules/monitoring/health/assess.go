package health

import (
	"slices"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

var sensorNames = map[types.Field]string{
	types.FieldCO:             "Carbon Monoxide",
	types.FieldCO2:            "Carbon Dioxide",
	types.FieldNH3:            "Ammonia",
	types.FieldLPG:            "LPG",
	types.FieldSmoke:          "Smoke",
	types.FieldAlcohol:        "Alcohol",
	types.FieldTemperature:    "Temperature",
	types.FieldHumidity:       "Humidity",
	types.FieldSoundIntensity: "Sound Level",
}

type FieldRisk struct {
	Field   types.Field `json:"field"`
	Name    string      `json:"name"`
	Unit    string      `json:"unit"`
	Average float64     `json:"average"`
	Level   Level       `json:"level"`
}

type Assessment struct {
	Overall Level       `json:"overall"`
	Fields  []FieldRisk `json:"fields"`
	// Alerts lists the non-safe fields, worst first.
	Alerts []FieldRisk `json:"alerts"`
	Count  int         `json:"count"`
}

// Assess classifies the average of each health field over readings. An
// empty input assesses as Safe with no fields.
func Assess(readings []types.Reading, th Thresholds) Assessment {
	if len(readings) == 0 {
		return Assessment{Overall: Safe, Fields: []FieldRisk{}, Alerts: []FieldRisk{}}
	}

	fields := make([]FieldRisk, 0, len(types.HealthFields))
	levels := make([]Level, 0, len(types.HealthFields))
	for _, f := range types.HealthFields {
		var sum float64
		for _, r := range readings {
			sum += f.Value(r)
		}
		avg := sum / float64(len(readings))
		lvl := Classify(f, avg, th)
		levels = append(levels, lvl)
		fields = append(fields, FieldRisk{
			Field:   f,
			Name:    sensorNames[f],
			Unit:    f.Unit(),
			Average: avg,
			Level:   lvl,
		})
	}

	alerts := make([]FieldRisk, 0)
	for _, fr := range fields {
		if fr.Level != Safe {
			alerts = append(alerts, fr)
		}
	}
	slices.SortStableFunc(alerts, func(a, b FieldRisk) int {
		return int(b.Level) - int(a.Level)
	})

	return Assessment{
		Overall: Aggregate(levels),
		Fields:  fields,
		Alerts:  alerts,
		Count:   len(readings),
	}
}
