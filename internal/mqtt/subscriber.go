package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/he1nht3t/envmonitoring-web/internal/config"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

// Recorder counts received and rejected messages.
type Recorder interface {
	MessageReceived()
	MessageInvalid(reason string)
}

type nopRecorder struct{}

func (nopRecorder) MessageReceived()      {}
func (nopRecorder) MessageInvalid(string) {}

type Subscriber struct {
	client   mqtt.Client
	cfg      config.MQTT
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu         sync.RWMutex
	connected  bool
	handler    func(reading types.Reading) error
	// connectTok is the pending or completed initial connect. With
	// ConnectRetry it stays pending until the broker is reachable.
	connectTok mqtt.Token

	// subscribed is closed after the first successful subscription.
	subscribed     chan struct{}
	subscribedOnce sync.Once

	stopCh   chan struct{}
	stopOnce sync.Once
}

type SubscriberOption func(*Subscriber)

func WithRecorder(r Recorder) SubscriberOption {
	return func(s *Subscriber) {
		if r != nil {
			s.recorder = r
		}
	}
}

func withClock(now func() time.Time) SubscriberOption {
	return func(s *Subscriber) { s.now = now }
}

func NewSubscriber(cfg config.MQTT, logger *slog.Logger, opts ...SubscriberOption) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}
	s := &Subscriber{
		cfg:      cfg,
		logger:   logger,
		recorder:   nopRecorder{},
		now:        time.Now,
		subscribed: make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Sessions are clean, so every connect (first or reconnect) subscribes.
	s.client = mqtt.NewClient(clientOptions(cfg, logger,
		func() {
			s.setConnected(true)
			if err := s.subscribe(); err != nil {
				s.logger.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", err)
				return
			}
			s.subscribedOnce.Do(func() { close(s.subscribed) })
		},
		func() { s.setConnected(false) },
	))
	return s, nil
}

// SetMessageHandler sets the callback for each valid reading. Set it before
// Connect: the broker may deliver right after the subscription is acked.
func (s *Subscriber) SetMessageHandler(handler func(reading types.Reading) error) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Connect starts connecting and waits until the configured topic is
// subscribed. If ctx ends first the client keeps retrying in the background
// and subscribes once the broker is reachable; a later Connect waits on the
// same attempt.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	s.mu.Lock()
	if s.connectTok == nil {
		s.connectTok = s.client.Connect()
	}
	tok := s.connectTok
	s.mu.Unlock()

	if err := waitToken(ctx, s.stopCh, tok); err != nil {
		if tok.Error() != nil {
			// The attempt itself failed; let the next Connect start over.
			s.mu.Lock()
			if s.connectTok == tok {
				s.connectTok = nil
			}
			s.mu.Unlock()
		}
		return fmt.Errorf("mqtt connect: %w", err)
	}

	select {
	case <-s.subscribed:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("subscribe %s: %w", s.cfg.Topic, ctx.Err())
	case <-s.stopCh:
		return errStopped
	}
}

func (s *Subscriber) subscribe() error {
	if !s.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := s.cfg.Topic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.recorder.MessageReceived()
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	reading, reason, err := s.decode(topic, payload)
	if err != nil {
		s.recorder.MessageInvalid(reason)
		s.logger.Warn("dropping mqtt message",
			"topic", topic,
			"reason", reason,
			"error", err,
		)
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(reading); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"device_id", reading.DeviceID,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed sensor reading",
		"device_id", reading.DeviceID,
		"created_at", reading.CreatedAt,
	)
}

// decode parses a reading. A missing device_id is taken from the topic and
// a missing created_at is stamped with the receive time.
func (s *Subscriber) decode(topic string, payload []byte) (types.Reading, string, error) {
	var r types.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return types.Reading{}, "decode", err
	}

	if fromTopic := deviceFromTopic(s.cfg.Topic, topic); fromTopic != "" {
		switch r.DeviceID {
		case "":
			r.DeviceID = fromTopic
		case fromTopic:
		default:
			return types.Reading{}, "topic_mismatch",
				fmt.Errorf("payload device_id %q does not match topic device %q", r.DeviceID, fromTopic)
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}

	if err := r.Validate(); err != nil {
		return types.Reading{}, "validate", err
	}
	return r, "", nil
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.Topic)
		token.WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
