package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/repository"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/trend"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

const (
	// CompareLimit is the number of most recent readings fetched per device.
	CompareLimit      = 50
	MaxCompareDevices = 8
	// CompareTolerance is how far a device's reading may lie from a timeline
	// instant and still be reported at it.
	CompareTolerance = 5 * time.Minute
)

var ErrInvalidComparison = errors.New("invalid comparison")

type ComparisonPoint struct {
	Timestamp time.Time `json:"timestamp"`
	// Values maps device ID to the field value. Devices with no reading
	// within CompareTolerance are absent.
	Values map[string]float64 `json:"values"`
}

type Comparison struct {
	Field   types.Field       `json:"field"`
	Label   string            `json:"label"`
	Unit    string            `json:"unit"`
	Devices []string          `json:"devices"`
	Points  []ComparisonPoint `json:"points"`
}

// Compare loads the most recent readings of each device, scoped to the
// selected date when one is set, and aligns field on the union of their
// timestamps.
func (s *Session) Compare(ctx context.Context, deviceIDs []string, field types.Field) (Comparison, error) {
	devices, err := compareDevices(deviceIDs)
	if err != nil {
		return Comparison{}, err
	}

	q := repository.ReadingsQuery{Limit: CompareLimit}
	s.mu.Lock()
	if d := s.settings.SelectedDate; d != nil {
		b := timerange.Day(*d)
		q.From, q.To = b.Start, b.End
	}
	s.mu.Unlock()

	series := make([][]types.Reading, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range devices {
		g.Go(func() error {
			dq := q
			dq.DeviceID = id
			readings, err := s.reader.ListReadings(gctx, dq)
			if err != nil {
				return fmt.Errorf("%w: device %q: %w", ErrNoHistory, id, err)
			}
			series[i] = trend.SortAscending(readings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.observer.FetchFailed("compare")
		s.logger.Error("failed to load comparison", "devices", devices, "error", err)
		return Comparison{}, err
	}

	return Comparison{
		Field:   field,
		Label:   field.Label(),
		Unit:    field.Unit(),
		Devices: devices,
		Points:  alignSeries(devices, series, field, CompareTolerance),
	}, nil
}

// compareDevices trims and de-duplicates ids, keeping the first occurrence.
func compareDevices(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no devices", ErrInvalidComparison)
	}
	if len(out) > MaxCompareDevices {
		return nil, fmt.Errorf("%w: at most %d devices", ErrInvalidComparison, MaxCompareDevices)
	}
	return out, nil
}

// alignSeries builds one point per distinct timestamp across series (each
// sorted ascending), taking every device's nearest reading within tolerance.
func alignSeries(devices []string, series [][]types.Reading, field types.Field, tolerance time.Duration) []ComparisonPoint {
	var instants []time.Time
	for _, rs := range series {
		for _, r := range rs {
			instants = append(instants, r.CreatedAt)
		}
	}
	slices.SortFunc(instants, time.Time.Compare)
	instants = slices.CompactFunc(instants, time.Time.Equal)

	points := make([]ComparisonPoint, 0, len(instants))
	for _, at := range instants {
		p := ComparisonPoint{Timestamp: at, Values: make(map[string]float64, len(devices))}
		for i, id := range devices {
			r, ok := nearest(series[i], at)
			if ok && r.CreatedAt.Sub(at).Abs() < tolerance {
				p.Values[id] = field.Value(r)
			}
		}
		points = append(points, p)
	}
	return points
}

// nearest returns the reading of ascending rs closest to at. On a tie the
// later reading wins.
func nearest(rs []types.Reading, at time.Time) (types.Reading, bool) {
	if len(rs) == 0 {
		return types.Reading{}, false
	}
	i, _ := slices.BinarySearchFunc(rs, at, func(r types.Reading, t time.Time) int {
		return r.CreatedAt.Compare(t)
	})
	switch i {
	case 0:
		return rs[0], true
	case len(rs):
		return rs[len(rs)-1], true
	}
	before, after := rs[i-1], rs[i]
	if at.Sub(before.CreatedAt) < after.CreatedAt.Sub(at) {
		return before, true
	}
	return after, true
}
