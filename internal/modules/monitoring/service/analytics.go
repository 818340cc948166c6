package service

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/analyzer"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/stats"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/trend"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

type FieldStatistics struct {
	Field types.Field `json:"field"`
	Label string      `json:"label"`
	Unit  string      `json:"unit"`
	stats.Description
}

type TrendResult struct {
	Field     types.Field     `json:"field"`
	Window    int             `json:"window"`
	Direction trend.Direction `json:"direction"`
	Slope     float64         `json:"slope"`
	Points    []trend.Point   `json:"points"`
}

func (s *Session) Statistics(ctx context.Context, field types.Field) (FieldStatistics, error) {
	v, err := s.loadView(ctx, false)
	if err != nil {
		return FieldStatistics{}, err
	}
	key := memoKey(v.hash, "statistics", string(field))
	if cached, ok := s.memoGet(key); ok {
		return cached.(FieldStatistics), nil
	}
	res := FieldStatistics{
		Field:       field,
		Label:       field.Label(),
		Unit:        field.Unit(),
		Description: stats.Describe(types.Values(v.readings, field)),
	}
	s.memoPut(key, res)
	return res, nil
}

func (s *Session) Trend(ctx context.Context, field types.Field) (TrendResult, error) {
	v, err := s.loadView(ctx, false)
	if err != nil {
		return TrendResult{}, err
	}
	window := v.settings.MovingAverageWindow
	key := memoKey(v.hash, "trend", string(field), uint64(window))
	if cached, ok := s.memoGet(key); ok {
		return cached.(TrendResult), nil
	}
	values := types.Values(v.readings, field)
	res := TrendResult{
		Field:     field,
		Window:    window,
		Direction: trend.ClassifySlope(values),
		Slope:     trend.Slope(values),
		Points:    trend.MovingAverage(v.readings, field, window),
	}
	s.memoPut(key, res)
	return res, nil
}

func (s *Session) Risk(ctx context.Context) (health.Assessment, error) {
	v, err := s.loadView(ctx, false)
	if err != nil {
		return health.Assessment{}, err
	}
	key := memoKey(v.hash, "risk", thresholdsKey(v.settings.Thresholds))
	if cached, ok := s.memoGet(key); ok {
		return cached.(health.Assessment), nil
	}
	res := health.Assess(v.readings, v.settings.Thresholds)
	s.memoPut(key, res)
	return res, nil
}

func (s *Session) Analysis(ctx context.Context) (analyzer.Result, error) {
	v, err := s.loadView(ctx, false)
	if err != nil {
		return analyzer.Result{}, err
	}
	key := memoKey(v.hash, "analysis", thresholdsKey(v.settings.Thresholds), policyKey(v.settings.Policy))
	if cached, ok := s.memoGet(key); ok {
		return cached.(analyzer.Result), nil
	}
	res := analyzer.Analyze(v.readings, v.settings.Thresholds, v.settings.Policy)
	s.memoPut(key, res)
	return res, nil
}

func (s *Session) memoGet(key uint64) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.memo[key]
	return v, ok
}

// memoPut drops every entry once the memo is full.
func (s *Session) memoPut(key uint64, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.memo) >= s.memoCap {
		clear(s.memo)
	}
	s.memo[key] = v
}

// memoKey accepts strings and uint64 parts.
func memoKey(historyHash uint64, parts ...any) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], historyHash)
	_, _ = d.Write(buf[:])
	for _, p := range parts {
		switch p := p.(type) {
		case string:
			_, _ = d.WriteString(p)
			_, _ = d.Write([]byte{0})
		case uint64:
			binary.LittleEndian.PutUint64(buf[:], p)
			_, _ = d.Write(buf[:])
		}
	}
	return d.Sum64()
}

func thresholdsKey(th health.Thresholds) uint64 {
	vals := make([]float64, 0, 3*len(types.HealthFields))
	for _, f := range types.HealthFields {
		t := th[f]
		vals = append(vals, t.Moderate, t.Unhealthy, t.Dangerous)
	}
	return hashFloats(vals)
}

func policyKey(p analyzer.Policy) uint64 {
	return hashFloats([]float64{
		p.TrendThreshold,
		p.TempCritical, p.TempWarnHigh, p.TempWarnLow,
		p.HumidityCriticalHigh, p.HumidityCriticalLow, p.HumidityWarnHigh, p.HumidityWarnLow,
		p.NoiseModerate, p.NoiseLoud, p.NoiseVeryLoud,
		p.RainLight, p.RainModerate, p.RainHeavy,
	})
}

func hashFloats(vals []float64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
