package trend

import (
	"math"
	"testing"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

func series(temps ...float64) []types.Reading {
	base := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	out := make([]types.Reading, len(temps))
	for i, v := range temps {
		out[i] = types.Reading{DeviceID: "dev-1", Temperature: v, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestMovingAverage_WindowOneIsIdentity(t *testing.T) {
	s := series(3, 9, 1, 7)
	got := MovingAverage(s, types.FieldTemperature, 1)
	for i, p := range got {
		if p.MovingAverage != p.Value || p.Value != s[i].Temperature {
			t.Errorf("point %d = %+v; want value and average %v", i, p, s[i].Temperature)
		}
		if !p.Timestamp.Equal(s[i].CreatedAt) {
			t.Errorf("point %d timestamp = %s; want %s", i, p.Timestamp, s[i].CreatedAt)
		}
	}
}

func TestMovingAverage_TrailingClamped(t *testing.T) {
	got := MovingAverage(series(1, 2, 3, 4, 5), types.FieldTemperature, 3)
	want := []float64{1, 1.5, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i].MovingAverage-want[i]) > 1e-9 {
			t.Errorf("ma[%d] = %v; want %v", i, got[i].MovingAverage, want[i])
		}
	}
}

func TestMovingAverage_Degenerate(t *testing.T) {
	if got := MovingAverage(nil, types.FieldTemperature, 5); len(got) != 0 {
		t.Errorf("empty series gave %d points", len(got))
	}
	got := MovingAverage(series(4, 6), types.FieldTemperature, 0)
	if got[1].MovingAverage != 6 {
		t.Errorf("window 0 should behave as 1; got %v", got[1].MovingAverage)
	}
}

func TestSlope(t *testing.T) {
	if got := Slope([]float64{1, 3, 5, 7}); math.Abs(got-2) > 1e-9 {
		t.Errorf("Slope = %v; want 2", got)
	}
	if got := Slope([]float64{42}); got != 0 {
		t.Errorf("Slope(single) = %v; want 0", got)
	}
	if got := Slope(nil); got != 0 {
		t.Errorf("Slope(nil) = %v; want 0", got)
	}
}

func TestClassifySlope(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Direction
	}{
		{"increasing", []float64{1, 2, 3, 4, 5}, Rising},
		{"decreasing", []float64{10, 8, 6, 4}, Falling},
		{"constant", []float64{5, 5, 5, 5}, Stable},
		{"shallow", []float64{5, 5.05, 5.1, 5.15}, Stable},
		{"single", []float64{3}, Stable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySlope(tt.values); got != tt.want {
				t.Errorf("ClassifySlope(%v) = %s; want %s", tt.values, got, tt.want)
			}
		})
	}
}

func TestClassifyDelta(t *testing.T) {
	if got := ClassifyDelta(20.4, 20, 0.5); got != Stable {
		t.Errorf("got %s; want stable", got)
	}
	if got := ClassifyDelta(21, 20, 0.5); got != Rising {
		t.Errorf("got %s; want rising", got)
	}
	if got := ClassifyDelta(19, 20, 0.5); got != Falling {
		t.Errorf("got %s; want falling", got)
	}
}

func TestSort(t *testing.T) {
	s := series(1, 2, 3)
	shuffled := []types.Reading{s[1], s[2], s[0]}

	asc := SortAscending(shuffled)
	if asc[0].Temperature != 1 || asc[2].Temperature != 3 {
		t.Errorf("SortAscending = %v", asc)
	}
	desc := SortDescending(shuffled)
	if desc[0].Temperature != 3 || desc[2].Temperature != 1 {
		t.Errorf("SortDescending = %v", desc)
	}
	if shuffled[0].Temperature != 2 {
		t.Error("input was reordered")
	}
}
