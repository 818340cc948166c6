package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

type historyKey struct {
	device string
	bounds timerange.Bounds
}

func (k historyKey) equal(o historyKey) bool {
	return k.device == o.device &&
		k.bounds.HalfOpen == o.bounds.HalfOpen &&
		k.bounds.Start.Equal(o.bounds.Start) &&
		k.bounds.End.Equal(o.bounds.End)
}

// history is the selected device's readings in the resolved range, oldest
// first. hash identifies its contents for memoization.
type history struct {
	key      historyKey
	readings []types.Reading
	hash     uint64
	loaded   bool
}

// view is a consistent copy of the history and the settings that apply
// to it.
type view struct {
	readings []types.Reading
	hash     uint64
	settings Settings
}

// History returns the selected device's readings in the current time
// range, oldest first. It is served from cache until the device or range
// changes; live inserts inside the range are merged into the cache.
func (s *Session) History(ctx context.Context) ([]types.Reading, error) {
	v, err := s.loadView(ctx, false)
	if err != nil {
		return nil, err
	}
	return v.readings, nil
}

// RefreshHistory refetches the history even when the cache is current. On
// failure the previous history for the same device and range is kept.
func (s *Session) RefreshHistory(ctx context.Context) ([]types.Reading, error) {
	v, err := s.loadView(ctx, true)
	if err != nil {
		return nil, err
	}
	return v.readings, nil
}

func (s *Session) loadView(ctx context.Context, refresh bool) (view, error) {
	s.mu.Lock()
	key, err := s.historyKeyLocked()
	if err != nil {
		s.mu.Unlock()
		return view{}, err
	}
	if !refresh && s.hist.loaded && s.hist.key.equal(key) {
		v := s.viewLocked()
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	readings, fetchErr := s.reader.ListAllReadings(ctx, key.device, key.bounds.Start, key.bounds.QueryEnd())

	s.mu.Lock()
	defer s.mu.Unlock()
	if fetchErr != nil {
		s.observer.FetchFailed("history")
		s.logger.Error("failed to load history",
			"device_id", key.device,
			"start", key.bounds.Start,
			"end", key.bounds.End,
			"error", fetchErr,
		)
		if s.hist.loaded && s.hist.key.equal(key) {
			return s.viewLocked(), nil
		}
		return view{}, fmt.Errorf("%w: %w", ErrNoHistory, fetchErr)
	}

	cur, err := s.historyKeyLocked()
	if err != nil || !cur.equal(key) {
		s.observer.StaleFetch("history")
		s.logger.Info("discarding stale history fetch", "device_id", key.device)
		return view{}, ErrStale
	}
	s.setHistoryLocked(key, readings)
	return s.viewLocked(), nil
}

func (s *Session) historyKeyLocked() (historyKey, error) {
	if s.settings.SelectedDevice == "" {
		return historyKey{}, ErrNoDevice
	}
	b := s.boundsLocked()
	if b.Empty() {
		return historyKey{}, ErrEmptyRange
	}
	return historyKey{device: s.settings.SelectedDevice, bounds: b}, nil
}

func (s *Session) setHistoryLocked(key historyKey, readings []types.Reading) {
	s.hist = history{
		key:      key,
		readings: cloneReadings(readings),
		loaded:   true,
	}
	s.hist.hash = hashReadings(s.hist.readings)
}

func (s *Session) viewLocked() view {
	return view{
		readings: cloneReadings(s.hist.readings),
		hash:     s.hist.hash,
		settings: s.settings.clone(),
	}
}

// appendHistory merges a live reading into the cached history when it
// belongs to the cached device and range.
func (s *Session) appendHistory(r types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hist.loaded || r.DeviceID != s.hist.key.device || !s.hist.key.bounds.Contains(r.CreatedAt) {
		return
	}
	if slices.ContainsFunc(s.hist.readings, func(x types.Reading) bool { return x.ID == r.ID }) {
		return
	}
	i, _ := slices.BinarySearchFunc(s.hist.readings, r, func(a, b types.Reading) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	s.hist.readings = slices.Insert(s.hist.readings, i, r)
	s.hist.hash = hashReadings(s.hist.readings)
}

func hashReadings(readings []types.Reading) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, r := range readings {
		_, _ = d.WriteString(r.ID)
		binary.LittleEndian.PutUint64(buf[:], uint64(r.CreatedAt.UnixNano()))
		_, _ = d.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(len(readings)))
	_, _ = d.Write(buf[:])
	return d.Sum64()
}
