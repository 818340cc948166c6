package health

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

var ErrNonMonotonicTier = errors.New("thresholds must satisfy moderate < unhealthy < dangerous")

type Tier struct {
	Moderate  float64 `json:"moderate" yaml:"moderate"`
	Unhealthy float64 `json:"unhealthy" yaml:"unhealthy"`
	Dangerous float64 `json:"dangerous" yaml:"dangerous"`
}

func (t Tier) Validate() error {
	for _, v := range []float64{t.Moderate, t.Unhealthy, t.Dangerous} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("threshold %v is not finite", v)
		}
	}
	if !(t.Moderate < t.Unhealthy && t.Unhealthy < t.Dangerous) {
		return fmt.Errorf("%w (got %v, %v, %v)", ErrNonMonotonicTier, t.Moderate, t.Unhealthy, t.Dangerous)
	}
	return nil
}

// Thresholds maps each health field to its tier. Values are never mutated
// in place; Merge returns a new table.
type Thresholds map[types.Field]Tier

func DefaultThresholds() Thresholds {
	return Thresholds{
		types.FieldCO:             {Moderate: 9, Unhealthy: 15, Dangerous: 30},
		types.FieldCO2:            {Moderate: 1000, Unhealthy: 5000, Dangerous: 40000},
		types.FieldNH3:            {Moderate: 25, Unhealthy: 35, Dangerous: 50},
		types.FieldLPG:            {Moderate: 1000, Unhealthy: 2000, Dangerous: 5000},
		types.FieldSmoke:          {Moderate: 100, Unhealthy: 300, Dangerous: 500},
		types.FieldAlcohol:        {Moderate: 50, Unhealthy: 100, Dangerous: 200},
		types.FieldTemperature:    {Moderate: 30, Unhealthy: 35, Dangerous: 40},
		types.FieldHumidity:       {Moderate: 70, Unhealthy: 80, Dangerous: 90},
		types.FieldSoundIntensity: {Moderate: 70, Unhealthy: 85, Dangerous: 100},
	}
}

func (th Thresholds) Clone() Thresholds {
	return maps.Clone(th)
}

// Merge replaces whole tiers for the fields present in patch. The result
// is validated before it is returned; th is left untouched on error.
func (th Thresholds) Merge(patch map[types.Field]Tier) (Thresholds, error) {
	out := th.Clone()
	if out == nil {
		out = Thresholds{}
	}
	for f, tier := range patch {
		if err := tier.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		out[f] = tier
	}
	return out, nil
}

func (th Thresholds) Validate() error {
	for f, tier := range th {
		if err := tier.Validate(); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}

type fileFormat struct {
	Thresholds map[string]Tier `yaml:"thresholds"`
}

// LoadFile reads threshold overrides from a YAML document of the form
//
//	thresholds:
//	  co2: {moderate: 800, unhealthy: 2000, dangerous: 5000}
//
// and merges them onto the defaults.
func LoadFile(path string) (Thresholds, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Thresholds, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse thresholds: %w", err)
	}
	patch := make(map[types.Field]Tier, len(doc.Thresholds))
	for name, tier := range doc.Thresholds {
		f, err := types.ParseField(name)
		if err != nil {
			return nil, err
		}
		patch[f] = tier
	}
	return DefaultThresholds().Merge(patch)
}
