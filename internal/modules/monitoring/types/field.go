package types

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
)

// Field names one numeric column of a Reading.
type Field string

const (
	FieldTemperature    Field = "temperature"
	FieldHumidity       Field = "humidity"
	FieldCO             Field = "co"
	FieldCO2            Field = "co2"
	FieldNH3            Field = "nh3"
	FieldLPG            Field = "lpg"
	FieldSmoke          Field = "smoke"
	FieldAlcohol        Field = "alcohol"
	FieldSoundIntensity Field = "sound_intensity"
	FieldRainIntensity  Field = "rain_intensity"
)

var AllFields = []Field{
	FieldTemperature,
	FieldHumidity,
	FieldCO,
	FieldCO2,
	FieldNH3,
	FieldLPG,
	FieldSmoke,
	FieldAlcohol,
	FieldSoundIntensity,
	FieldRainIntensity,
}

// HealthFields are the fields that carry exposure thresholds. Rain has none.
var HealthFields = []Field{
	FieldCO,
	FieldCO2,
	FieldNH3,
	FieldLPG,
	FieldSmoke,
	FieldAlcohol,
	FieldTemperature,
	FieldHumidity,
	FieldSoundIntensity,
}

var fieldMeta = map[Field]struct {
	label string
	unit  string
}{
	FieldTemperature:    {"Temperature", "°C"},
	FieldHumidity:       {"Humidity", "%"},
	FieldCO:             {"CO", "ppm"},
	FieldCO2:            {"CO2", "ppm"},
	FieldNH3:            {"NH3", "ppm"},
	FieldLPG:            {"LPG", "ppm"},
	FieldSmoke:          {"Smoke", "ppm"},
	FieldAlcohol:        {"Alcohol", "ppm"},
	FieldSoundIntensity: {"Sound", "dB"},
	FieldRainIntensity:  {"Rain", "mm"},
}

// ParseField accepts the snake_case column name or its camelCase form
// ("soundIntensity"), case-insensitively.
func ParseField(s string) (Field, error) {
	s = strings.TrimSpace(s)
	// strcase splits digits ("co2" -> "co_2"), so try the plain name first.
	if f := Field(strings.ToLower(s)); isKnown(f) {
		return f, nil
	}
	if f := Field(strcase.ToSnake(s)); isKnown(f) {
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

func isKnown(f Field) bool {
	_, ok := fieldMeta[f]
	return ok
}

func (f Field) String() string { return string(f) }

func (f Field) Label() string { return fieldMeta[f].label }

func (f Field) Unit() string { return fieldMeta[f].unit }

// Value returns the reading's value for f, or 0 for an unknown field.
func (f Field) Value(r Reading) float64 {
	switch f {
	case FieldTemperature:
		return r.Temperature
	case FieldHumidity:
		return r.Humidity
	case FieldCO:
		return r.CO
	case FieldCO2:
		return r.CO2
	case FieldNH3:
		return r.NH3
	case FieldLPG:
		return r.LPG
	case FieldSmoke:
		return r.Smoke
	case FieldAlcohol:
		return r.Alcohol
	case FieldSoundIntensity:
		return r.SoundIntensity
	case FieldRainIntensity:
		return r.RainIntensity
	default:
		return 0
	}
}
