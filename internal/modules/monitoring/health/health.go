// Package health classifies readings against four-tier exposure thresholds.
package health

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

// Level is totally ordered: Safe < Moderate < Unhealthy < Dangerous.
type Level int

const (
	Safe Level = iota
	Moderate
	Unhealthy
	Dangerous
)

var levelNames = [...]string{"safe", "moderate", "unhealthy", "dangerous"}

func (l Level) String() string {
	if l < Safe || l > Dangerous {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Level(i), nil
		}
	}
	return Safe, fmt.Errorf("unknown risk level %q", s)
}

// Classify uses inclusive lower bounds. A field with no tier is Safe.
func Classify(field types.Field, value float64, th Thresholds) Level {
	tier, ok := th[field]
	if !ok {
		return Safe
	}
	switch {
	case value >= tier.Dangerous:
		return Dangerous
	case value >= tier.Unhealthy:
		return Unhealthy
	case value >= tier.Moderate:
		return Moderate
	default:
		return Safe
	}
}

// Aggregate returns the worst level, or Safe for none.
func Aggregate(levels []Level) Level {
	worst := Safe
	for _, l := range levels {
		worst = max(worst, l)
	}
	return worst
}
