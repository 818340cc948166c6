// Package service coordinates the monitoring engines for one dashboard
// session and stores incoming readings.
//
// A Session owns the user-facing settings (device, date, time range,
// moving-average window, health thresholds), keeps the live reconciler fed
// from the insert stream, and runs the pure analytics engines over the
// selected device's history. Fetches triggered by a selection change carry a
// request token; a response that arrives after a newer selection is dropped.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/analyzer"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/feed"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/live"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/repository"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

var (
	ErrStale      = errors.New("superseded by a newer request")
	ErrNoDevice   = errors.New("no device selected")
	ErrNoHistory  = errors.New("history unavailable")
	ErrEmptyRange = errors.New("time range contains no instants")
)

// Reader is the read side of the repository used by a session.
type Reader interface {
	ListDevices(ctx context.Context) ([]types.Device, error)
	ListReadings(ctx context.Context, q repository.ReadingsQuery) ([]types.Reading, error)
	ListAllReadings(ctx context.Context, deviceID string, from, to time.Time) ([]types.Reading, error)
	LatestPerDevice(ctx context.Context, from, to time.Time) ([]types.Reading, error)
}

type Session struct {
	reader    Reader
	source    feed.Subscriber
	recon     *live.Reconciler
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time
	windowCap int
	memoCap   int

	mu          sync.Mutex
	settings    Settings
	fetchToken  string
	cancelFetch context.CancelFunc
	hist        history
	memo        map[uint64]any
	sub         feed.Subscription
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock sets the reference time used when no date is selected.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func WithWindowCapacity(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.windowCap = n
		}
	}
}

func WithMemoCapacity(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.memoCap = n
		}
	}
}

// NewSession builds an idle session. Call Start to load data and attach to
// the insert stream.
func NewSession(reader Reader, source feed.Subscriber, settings Settings, opts ...Option) *Session {
	s := &Session{
		reader:    reader,
		source:    source,
		logger:    slog.Default(),
		observer:  nopObserver{},
		now:       time.Now,
		windowCap: live.DefaultWindowCapacity,
		memoCap:   64,
	}
	for _, opt := range opts {
		opt(s)
	}

	if settings.Thresholds == nil {
		settings.Thresholds = health.DefaultThresholds()
	}
	if ValidateWindow(settings.MovingAverageWindow) != nil {
		settings.MovingAverageWindow = DefaultMovingAverageWindow
	}
	if settings.Selection.Range == "" {
		settings.Selection.Range = timerange.DefaultRange
	}
	if settings.Policy == (analyzer.Policy{}) {
		settings.Policy = analyzer.DefaultPolicy()
	}
	s.settings = settings.clone()
	s.memo = make(map[uint64]any)
	s.recon = live.NewReconciler(s.windowCap, s.logger)
	return s
}

// Start subscribes to the insert stream, picks the first device when none is
// selected, and loads the latest map and the selected device's window.
func (s *Session) Start(ctx context.Context) error {
	s.recon.Begin()

	s.mu.Lock()
	if s.sub == nil && s.source != nil {
		s.sub = s.source.Subscribe(s.onReading)
	}
	selected := s.settings.SelectedDevice
	date := s.settings.SelectedDate
	s.mu.Unlock()

	if selected == "" {
		devices, err := s.reader.ListDevices(ctx)
		if err != nil {
			s.observer.FetchFailed("devices")
			s.logger.Error("failed to list devices", "error", err)
			return fmt.Errorf("start session: %w", err)
		}
		if len(devices) > 0 {
			selected = devices[0].ID
		}
	}

	s.mu.Lock()
	s.settings.SelectedDevice = selected
	s.recon.SetSelectedDevice(selected)
	s.mu.Unlock()

	return s.SelectDate(ctx, date)
}

// Close cancels any in-flight fetch and detaches from the insert stream.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
	s.fetchToken = ""
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

// SelectDevice switches the live window to id and reloads it.
func (s *Session) SelectDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	s.settings.SelectedDevice = id
	date := s.settings.SelectedDate
	fetchCtx, token := s.beginFetchLocked(ctx)
	s.recon.SetSelectedDevice(id)
	s.mu.Unlock()
	defer s.endFetch(token)

	if id == "" {
		return nil
	}
	return s.loadWindow(fetchCtx, token, id, date)
}

// SelectDate scopes live data to one calendar day, or removes the scope when
// date is nil, and reloads the latest map and window.
func (s *Session) SelectDate(ctx context.Context, date *time.Time) error {
	var day *time.Time
	if date != nil {
		d := timerange.StartOfDay(*date)
		day = &d
	}

	s.mu.Lock()
	s.settings.SelectedDate = day
	id := s.settings.SelectedDevice
	fetchCtx, token := s.beginFetchLocked(ctx)
	s.recon.SetDateScope(day)
	s.mu.Unlock()
	defer s.endFetch(token)

	var errs []error
	if err := s.loadLatest(fetchCtx, token, day); err != nil {
		errs = append(errs, err)
	}
	if id != "" {
		if err := s.loadWindow(fetchCtx, token, id, day); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) SetTimeRange(sel timerange.Selection) error {
	if err := ValidateSelection(sel); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Selection = sel
	return nil
}

func (s *Session) SetMovingAverageWindow(n int) error {
	if err := ValidateWindow(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.MovingAverageWindow = n
	return nil
}

// UpdateHealthThresholds replaces the tiers named in patch and returns the
// resulting table. An invalid patch leaves the current table in place.
func (s *Session) UpdateHealthThresholds(patch map[types.Field]health.Tier) (health.Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := s.settings.Thresholds.Merge(patch)
	if err != nil {
		return nil, err
	}
	s.settings.Thresholds = merged
	return merged.Clone(), nil
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.clone()
}

// Bounds resolves the current time-range selection.
func (s *Session) Bounds() timerange.Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundsLocked()
}

func (s *Session) Snapshot() live.Snapshot {
	return s.recon.Snapshot()
}

// Recent returns window readings created within d of now, newest first.
func (s *Session) Recent(d time.Duration) []types.Reading {
	window, _ := s.recon.Window()
	cutoff := s.now().Add(-d)
	out := make([]types.Reading, 0, len(window))
	for _, r := range window {
		if r.CreatedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Session) onReading(r types.Reading) {
	outcome := s.recon.Apply(r)
	s.observer.LiveEvent(outcome)
	if outcome == live.Applied || outcome == live.Superseded {
		s.appendHistory(r)
	}
	window, _ := s.recon.Window()
	s.observer.WindowLength(len(window))
}

func (s *Session) loadLatest(ctx context.Context, token string, day *time.Time) error {
	var from, to time.Time
	if day != nil {
		b := timerange.Day(*day)
		from, to = b.Start, b.End
	}
	readings, err := s.reader.LatestPerDevice(ctx, from, to)
	current := s.commit(token, func() {
		if err == nil {
			s.recon.LoadLatest(readings)
		}
	})
	if !current {
		s.observer.StaleFetch("latest")
		s.logger.Info("discarding stale latest fetch")
		return ErrStale
	}
	if err != nil {
		s.observer.FetchFailed("latest")
		s.logger.Error("failed to load latest readings", "error", err)
		return fmt.Errorf("load latest readings: %w", err)
	}
	return nil
}

func (s *Session) loadWindow(ctx context.Context, token, id string, day *time.Time) error {
	q := repository.ReadingsQuery{DeviceID: id, Limit: s.windowCap}
	if day != nil {
		b := timerange.Day(*day)
		q.From, q.To = b.Start, b.End
	}
	readings, err := s.reader.ListReadings(ctx, q)
	loaded := false
	current := s.commit(token, func() {
		if err == nil {
			loaded = s.recon.LoadWindow(id, readings)
		}
	})
	if !current {
		s.observer.StaleFetch("window")
		s.logger.Info("discarding stale window fetch", "device_id", id)
		return ErrStale
	}
	if err != nil {
		s.observer.FetchFailed("window")
		s.logger.Error("failed to load device window", "device_id", id, "error", err)
		return fmt.Errorf("load window for %q: %w", id, err)
	}
	if !loaded {
		s.observer.StaleFetch("window")
		s.logger.Info("discarding window for deselected device", "device_id", id)
		return ErrStale
	}
	s.observer.WindowLength(len(readings))
	return nil
}

// beginFetchLocked cancels the previous selection fetch and issues a new
// token. s.mu must be held.
func (s *Session) beginFetchLocked(parent context.Context) (context.Context, string) {
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelFetch = cancel
	s.fetchToken = uuid.NewString()
	return ctx, s.fetchToken
}

func (s *Session) endFetch(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchToken == token && s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
}

// commit runs apply under s.mu if token is still the current fetch, so a
// result is applied to the reconciler in the same order selections were
// made. It reports whether the token was current.
func (s *Session) commit(token string, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || s.fetchToken != token {
		return false
	}
	apply()
	return true
}

func (s *Session) reference() time.Time {
	if s.settings.SelectedDate != nil {
		return *s.settings.SelectedDate
	}
	return s.now()
}

func (s *Session) boundsLocked() timerange.Bounds {
	return timerange.Resolve(s.settings.Selection, s.reference())
}

func cloneReadings(in []types.Reading) []types.Reading {
	return slices.Clone(in)
}
