package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

type recordingPublisher struct {
	mu       sync.Mutex
	readings []types.Reading
	fail     bool
}

func (p *recordingPublisher) PublishReading(r types.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.readings = append(p.readings, r)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.readings)
}

func TestGenerator_ReadingsAreValidAndBounded(t *testing.T) {
	gen := NewGenerator(7)
	for i := 0; i < 500; i++ {
		r := gen.Next("dev-1")
		require.NoError(t, r.Validate())
		for _, c := range channels {
			v := c.field.Value(r)
			assert.GreaterOrEqual(t, v, c.min, c.field)
			assert.LessOrEqual(t, v, c.max, c.field)
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := NewGenerator(42), NewGenerator(42)
	fixed := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	a.now, b.now = fixed, fixed
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next("x"), b.Next("x"))
	}
}

func TestGenerator_DevicesDriftIndependently(t *testing.T) {
	gen := NewGenerator(3)
	first := gen.Next("a")
	gen.Next("a")
	other := gen.Next("b")
	assert.Equal(t, "b", other.DeviceID)
	assert.NotEqual(t, first.CO2, 0.0)
	assert.Len(t, gen.state, 2)
}

func TestSet_CoversEveryField(t *testing.T) {
	for i, f := range types.AllFields {
		var r types.Reading
		set(&r, f, float64(i+1))
		assert.Equal(t, float64(i+1), f.Value(r), f)
	}
}

func TestRun(t *testing.T) {
	t.Run("publishes each device until cancelled", func(t *testing.T) {
		pub := &recordingPublisher{}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- Run(ctx, pub, NewGenerator(1), []string{"a", "b"}, 10*time.Millisecond, nil) }()

		require.Eventually(t, func() bool { return pub.count() >= 4 }, 2*time.Second, 5*time.Millisecond)
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("publish errors do not stop the loop", func(t *testing.T) {
		pub := &recordingPublisher{fail: true}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := Run(ctx, pub, NewGenerator(1), []string{"a"}, 10*time.Millisecond, nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, pub.count())
	})
}
