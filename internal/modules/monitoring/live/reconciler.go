// Package live keeps the latest reading per device and a bounded window of
// readings for the selected device, merging historical loads with pushed
// inserts.
package live

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/trend"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

type State string

const (
	Uninitialized State = "uninitialized"
	Loading       State = "loading"
	Ready         State = "ready"
)

type Outcome string

const (
	// Applied means the reading updated at least the latest map.
	Applied Outcome = "applied"
	// Superseded means a newer reading for the device was already known.
	Superseded Outcome = "superseded"
	Discarded  Outcome = "discarded"
	Rejected   Outcome = "rejected"
)

type Snapshot struct {
	State          State                    `json:"state"`
	SelectedDevice string                   `json:"selected_device"`
	DateScope      *time.Time               `json:"date_scope,omitempty"`
	Latest         map[string]types.Reading `json:"latest"`
	Window         []types.Reading          `json:"window"`
	Version        uint64                   `json:"version"`
}

type Reconciler struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	state    State
	latest   map[string]types.Reading
	selected string
	scope    *timerange.Bounds
	window   *Window
	version  uint64
}

func NewReconciler(capacity int, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		logger: logger,
		state:  Uninitialized,
		latest: make(map[string]types.Reading),
		window: NewWindow(capacity),
	}
}

// Begin marks the start of the first historical load.
func (c *Reconciler) Begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Uninitialized {
		c.state = Loading
	}
}

// LoadLatest replaces the latest map from a historical batch, keeping the
// newest reading per device.
func (c *Reconciler) LoadLatest(readings []types.Reading) {
	reduced := LatestByDevice(readings)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = reduced
	c.state = Ready
	c.version++
}

// LoadWindow replaces the selected device's window. It reports false, and
// changes nothing, when deviceID is no longer the selected device.
func (c *Reconciler) LoadWindow(deviceID string, readings []types.Reading) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deviceID != c.selected {
		return false
	}
	c.window.Reset(trend.SortDescending(readings))
	c.state = Ready
	c.version++
	return true
}

// Apply merges one pushed reading.
func (c *Reconciler) Apply(r types.Reading) Outcome {
	if err := r.Validate(); err != nil {
		c.logger.Warn("live reading rejected", "device_id", r.DeviceID, "error", err)
		return Rejected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scope != nil && !c.scope.Contains(r.CreatedAt) {
		c.logger.Debug("live reading outside date scope", "device_id", r.DeviceID, "created_at", r.CreatedAt)
		return Discarded
	}

	outcome := Applied
	if cur, ok := c.latest[r.DeviceID]; ok && r.CreatedAt.Before(cur.CreatedAt) {
		outcome = Superseded
	} else {
		c.latest[r.DeviceID] = r
	}

	if r.DeviceID == c.selected && c.selected != "" {
		c.window.Push(r)
	}
	c.version++
	return outcome
}

// SetSelectedDevice clears the window when the selection changes.
func (c *Reconciler) SetSelectedDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.selected {
		return
	}
	c.selected = id
	c.window.Clear()
	c.version++
}

// SetDateScope limits pushed readings to day's calendar day; nil removes
// the filter.
func (c *Reconciler) SetDateScope(day *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if day == nil {
		c.scope = nil
	} else {
		b := timerange.Day(*day)
		c.scope = &b
	}
	c.version++
}

func (c *Reconciler) SelectedDevice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

func (c *Reconciler) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Window returns a newest-first copy of the selected device's window and
// the version it was taken at.
func (c *Reconciler) Window() ([]types.Reading, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.Slice(), c.version
}

func (c *Reconciler) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		State:          c.state,
		SelectedDevice: c.selected,
		Latest:         maps.Clone(c.latest),
		Window:         c.window.Slice(),
		Version:        c.version,
	}
	if c.scope != nil {
		day := c.scope.Start
		s.DateScope = &day
	}
	return s
}

// LatestByDevice keeps the newest reading for each device.
func LatestByDevice(readings []types.Reading) map[string]types.Reading {
	out := make(map[string]types.Reading)
	for _, r := range readings {
		if cur, ok := out[r.DeviceID]; !ok || r.CreatedAt.After(cur.CreatedAt) {
			out[r.DeviceID] = r
		}
	}
	return out
}
