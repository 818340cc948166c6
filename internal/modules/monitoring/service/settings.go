package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/analyzer"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
)

const (
	DefaultMovingAverageWindow = 5
	MinMovingAverageWindow     = 1
	MaxMovingAverageWindow     = 100
)

var (
	ErrInvalidWindow = fmt.Errorf("moving average window must be between %d and %d", MinMovingAverageWindow, MaxMovingAverageWindow)
	ErrInvalidRange  = errors.New("invalid time range")
)

// Settings is the per-session configuration the engines are run with.
type Settings struct {
	Selection           timerange.Selection `json:"selection"`
	MovingAverageWindow int                 `json:"moving_average_window"`
	Thresholds          health.Thresholds   `json:"thresholds"`
	Policy              analyzer.Policy     `json:"policy"`
	SelectedDevice      string              `json:"selected_device"`
	SelectedDate        *time.Time          `json:"selected_date,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		Selection:           timerange.Selection{Range: timerange.DefaultRange},
		MovingAverageWindow: DefaultMovingAverageWindow,
		Thresholds:          health.DefaultThresholds(),
		Policy:              analyzer.DefaultPolicy(),
	}
}

func (s Settings) clone() Settings {
	s.Thresholds = s.Thresholds.Clone()
	if s.SelectedDate != nil {
		d := *s.SelectedDate
		s.SelectedDate = &d
	}
	return s
}

func ValidateSelection(sel timerange.Selection) error {
	if _, err := timerange.ParseRange(string(sel.Range)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	if sel.Range != timerange.RangeCustom {
		return nil
	}
	if sel.Start.IsZero() || sel.End.IsZero() {
		return fmt.Errorf("%w: custom range needs start and end", ErrInvalidRange)
	}
	if sel.End.Before(sel.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, sel.End.Format(time.RFC3339), sel.Start.Format(time.RFC3339))
	}
	return nil
}

func ValidateWindow(n int) error {
	if n < MinMovingAverageWindow || n > MaxMovingAverageWindow {
		return fmt.Errorf("%w (got %d)", ErrInvalidWindow, n)
	}
	return nil
}
