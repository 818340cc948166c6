package mqtt

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/he1nht3t/envmonitoring-web/internal/config"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

var fixedNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type countingRecorder struct {
	mu       sync.Mutex
	received int
	invalid  map[string]int
}

func (c *countingRecorder) MessageReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received++
}

func (c *countingRecorder) MessageInvalid(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalid == nil {
		c.invalid = map[string]int{}
	}
	c.invalid[reason]++
}

func (c *countingRecorder) counts() (int, map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.invalid))
	for k, v := range c.invalid {
		out[k] = v
	}
	return c.received, out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSubscriber(t *testing.T, rec Recorder) *Subscriber {
	t.Helper()
	s, err := NewSubscriber(config.MQTT{
		Broker:   "127.0.0.1",
		Port:     1883,
		ClientID: "test",
		Topic:    "devices/+/sensor_data",
	}, quietLogger(), WithRecorder(rec), withClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return s
}

func TestNewSubscriber_RequiresTopic(t *testing.T) {
	_, err := NewSubscriber(config.MQTT{Broker: "localhost", Port: 1883}, nil)
	assert.Error(t, err)
}

func TestSubscriber_handleMessage(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		payload    string
		wantReason string
		check      func(t *testing.T, r types.Reading)
	}{
		{
			name:    "full payload",
			topic:   "devices/dev-1/sensor_data",
			payload: `{"device_id":"dev-1","temperature":21.5,"co2":640,"created_at":"2024-03-01T07:59:00Z"}`,
			check: func(t *testing.T, r types.Reading) {
				assert.Equal(t, "dev-1", r.DeviceID)
				assert.Equal(t, 21.5, r.Temperature)
				assert.Equal(t, 640.0, r.CO2)
				assert.True(t, r.CreatedAt.Equal(time.Date(2024, 3, 1, 7, 59, 0, 0, time.UTC)))
			},
		},
		{
			name:    "device and time filled in",
			topic:   "devices/garage/sensor_data",
			payload: `{"humidity":55}`,
			check: func(t *testing.T, r types.Reading) {
				assert.Equal(t, "garage", r.DeviceID)
				assert.True(t, r.CreatedAt.Equal(fixedNow))
				assert.Equal(t, 55.0, r.Humidity)
			},
		},
		{
			name:       "malformed json",
			topic:      "devices/dev-1/sensor_data",
			payload:    `{"device_id":`,
			wantReason: "decode",
		},
		{
			name:       "topic mismatch",
			topic:      "devices/dev-2/sensor_data",
			payload:    `{"device_id":"dev-1","co":3}`,
			wantReason: "topic_mismatch",
		},
		{
			name:       "wrong field type",
			topic:      "devices/dev-1/sensor_data",
			payload:    `{"co":"high"}`,
			wantReason: "decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			s := newTestSubscriber(t, rec)

			var got []types.Reading
			s.SetMessageHandler(func(r types.Reading) error {
				got = append(got, r)
				return nil
			})
			s.handleMessage(tt.topic, []byte(tt.payload))

			received, invalid := rec.counts()
			assert.Equal(t, 1, received)
			if tt.wantReason != "" {
				assert.Empty(t, got)
				assert.Equal(t, map[string]int{tt.wantReason: 1}, invalid)
				return
			}
			require.Len(t, got, 1)
			assert.Empty(t, invalid)
			tt.check(t, got[0])
		})
	}
}

func TestSubscriber_handlerErrorIsNotInvalid(t *testing.T) {
	rec := &countingRecorder{}
	s := newTestSubscriber(t, rec)
	s.SetMessageHandler(func(types.Reading) error { return errors.New("db down") })

	s.handleMessage("devices/dev-1/sensor_data", []byte(`{"co":1}`))

	received, invalid := rec.counts()
	assert.Equal(t, 1, received)
	assert.Empty(t, invalid)
}

func TestTopicHelpers(t *testing.T) {
	assert.Equal(t, "devices/dev-1/sensor_data", TopicFor("devices/+/sensor_data", "dev-1"))
	assert.Equal(t, "site/a/dev-1", TopicFor("site/a/#", "dev-1"))
	assert.Equal(t, "fixed/topic", TopicFor("fixed/topic", "dev-1"))

	assert.Equal(t, "dev-1", deviceFromTopic("devices/+/sensor_data", "devices/dev-1/sensor_data"))
	assert.Equal(t, "", deviceFromTopic("fixed/topic", "fixed/topic"))
	assert.Equal(t, "", deviceFromTopic("site/#", "site/a/b"))
	assert.Equal(t, "", deviceFromTopic("a/b/+", "a/b"))
}
