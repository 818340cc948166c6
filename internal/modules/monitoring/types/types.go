package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type Device struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Reading is one sample from a device. Every numeric field is always
// present; a sensor that did not report is stored as 0.
type Reading struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"device_id"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity"`
	CO             float64   `json:"co"`
	CO2            float64   `json:"co2"`
	NH3            float64   `json:"nh3"`
	LPG            float64   `json:"lpg"`
	Smoke          float64   `json:"smoke"`
	Alcohol        float64   `json:"alcohol"`
	SoundIntensity float64   `json:"sound_intensity"`
	RainIntensity  float64   `json:"rain_intensity"`
	CreatedAt      time.Time `json:"created_at"`
}

var (
	ErrMissingDeviceID = errors.New("device_id is required")
	ErrMissingTime     = errors.New("created_at is required")
)

// Validate rejects readings that would corrupt the derived state.
func (r Reading) Validate() error {
	if r.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if r.CreatedAt.IsZero() {
		return ErrMissingTime
	}
	for _, f := range AllFields {
		v := f.Value(r)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not a finite number: %v", f, v)
		}
	}
	return nil
}

// Values projects one field out of a series, preserving order.
func Values(readings []Reading, f Field) []float64 {
	out := make([]float64, len(readings))
	for i, r := range readings {
		out[i] = f.Value(r)
	}
	return out
}
