// Package simulator publishes synthetic sensor readings for local runs.
package simulator

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

type Publisher interface {
	PublishReading(r types.Reading) error
}

// channel describes one simulated sensor: a bounded random walk around base.
type channel struct {
	field    types.Field
	base     float64
	step     float64
	min, max float64
}

var channels = []channel{
	{types.FieldTemperature, 24, 0.3, -10, 50},
	{types.FieldHumidity, 55, 1.0, 0, 100},
	{types.FieldCO, 3, 0.4, 0, 60},
	{types.FieldCO2, 650, 25, 350, 6000},
	{types.FieldNH3, 6, 0.8, 0, 80},
	{types.FieldLPG, 300, 30, 0, 6000},
	{types.FieldSmoke, 40, 6, 0, 700},
	{types.FieldAlcohol, 15, 3, 0, 300},
	{types.FieldSoundIntensity, 50, 2.5, 20, 120},
	{types.FieldRainIntensity, 0, 0.2, 0, 20},
}

// Generator produces readings whose values drift slowly per device, so
// trends and moving averages have something to show.
type Generator struct {
	rng   *rand.Rand
	now   func() time.Time
	state map[string]map[types.Field]float64
}

// NewGenerator seeds from seed, or from the clock when seed is 0.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rng:   rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)),
		now:   time.Now,
		state: make(map[string]map[types.Field]float64),
	}
}

func (g *Generator) Next(deviceID string) types.Reading {
	st, ok := g.state[deviceID]
	if !ok {
		st = make(map[types.Field]float64, len(channels))
		for _, c := range channels {
			st[c.field] = c.base
		}
		g.state[deviceID] = st
	}

	r := types.Reading{DeviceID: deviceID, CreatedAt: g.now().UTC()}
	for _, c := range channels {
		// Pull back toward base so long runs stay plausible.
		v := st[c.field] + g.rng.NormFloat64()*c.step + (c.base-st[c.field])*0.05
		v = math.Min(c.max, math.Max(c.min, v))
		st[c.field] = v
		set(&r, c.field, math.Round(v*100)/100)
	}
	return r
}

func set(r *types.Reading, f types.Field, v float64) {
	switch f {
	case types.FieldTemperature:
		r.Temperature = v
	case types.FieldHumidity:
		r.Humidity = v
	case types.FieldCO:
		r.CO = v
	case types.FieldCO2:
		r.CO2 = v
	case types.FieldNH3:
		r.NH3 = v
	case types.FieldLPG:
		r.LPG = v
	case types.FieldSmoke:
		r.Smoke = v
	case types.FieldAlcohol:
		r.Alcohol = v
	case types.FieldSoundIntensity:
		r.SoundIntensity = v
	case types.FieldRainIntensity:
		r.RainIntensity = v
	}
}

// Run publishes one reading per device every interval until ctx is done.
// Publish failures are logged and the loop keeps going.
func Run(ctx context.Context, pub Publisher, gen *Generator, devices []string, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, id := range devices {
			r := gen.Next(id)
			if err := pub.PublishReading(r); err != nil {
				logger.Warn("publish failed", "device_id", id, "error", err)
				continue
			}
			logger.Debug("published reading", "device_id", id, "co2", r.CO2, "temperature", r.Temperature)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
