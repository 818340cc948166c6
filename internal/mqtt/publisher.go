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

// Publisher sends readings to the per-device topic derived from cfg.Topic.
type Publisher struct {
	client    mqtt.Client
	cfg       config.MQTT
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(cfg config.MQTT, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	p.client = mqtt.NewClient(clientOptions(cfg, logger,
		func() { p.setConnected(true) },
		func() { p.setConnected(false) },
	))
	return p, nil
}

// Connect waits for the initial connection, respecting ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}
	if p.IsConnected() {
		return nil
	}
	if err := waitToken(ctx, p.stopCh, p.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// PublishReading publishes r to its device topic. A zero CreatedAt is left
// for the server to stamp on receipt.
func (p *Publisher) PublishReading(r types.Reading) error {
	if r.DeviceID == "" {
		return types.ErrMissingDeviceID
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	topic := TopicFor(p.cfg.Topic, r.DeviceID)
	if err := p.publish(topic, data); err != nil {
		return err
	}
	p.logger.Debug("published reading", "topic", topic, "device_id", r.DeviceID)
	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		p.logger.Error("failed to publish", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish: %w", token.Error())
	}
	return nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect is idempotent. After it, Connect returns an error.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.client.Disconnect(250)
	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
