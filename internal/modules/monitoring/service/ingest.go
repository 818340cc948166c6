package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

// MessageSource is anything that delivers decoded readings, normally the
// MQTT subscriber.
type MessageSource interface {
	SetMessageHandler(handler func(reading types.Reading) error)
}

// Writer is the write side of the repository used by ingest.
type Writer interface {
	EnsureDevice(ctx context.Context, id string) error
	InsertReading(ctx context.Context, r types.Reading) (types.Reading, error)
}

// Publisher fans stored readings out to live subscribers.
type Publisher interface {
	Publish(r types.Reading)
}

type Ingestor struct {
	repo         Writer
	publisher    Publisher
	logger       *slog.Logger
	observer     Observer
	autoRegister bool
	timeout      time.Duration
}

type IngestOption func(*Ingestor)

func WithIngestLogger(l *slog.Logger) IngestOption {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

func WithIngestObserver(o Observer) IngestOption {
	return func(in *Ingestor) {
		if o != nil {
			in.observer = o
		}
	}
}

// WithAutoRegister controls whether readings from unknown devices create the
// device row first. It is on by default.
func WithAutoRegister(on bool) IngestOption {
	return func(in *Ingestor) { in.autoRegister = on }
}

func NewIngestor(repo Writer, publisher Publisher, opts ...IngestOption) *Ingestor {
	in := &Ingestor{
		repo:         repo,
		publisher:    publisher,
		logger:       slog.Default(),
		observer:     nopObserver{},
		autoRegister: true,
		timeout:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Register attaches the ingest handler to src.
func (in *Ingestor) Register(src MessageSource) {
	src.SetMessageHandler(func(reading types.Reading) error {
		ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
		defer cancel()
		return in.Handle(ctx, reading)
	})
}

// Handle stores one reading and publishes the stored row.
func (in *Ingestor) Handle(ctx context.Context, reading types.Reading) error {
	in.logger.Debug("processing sensor reading",
		"device_id", reading.DeviceID,
		"created_at", reading.CreatedAt,
	)

	if err := reading.Validate(); err != nil {
		in.logger.Warn("dropping invalid reading", "device_id", reading.DeviceID, "error", err)
		return err
	}

	if in.autoRegister {
		if err := in.repo.EnsureDevice(ctx, reading.DeviceID); err != nil {
			in.logger.Error("failed to register device", "device_id", reading.DeviceID, "error", err)
			return err
		}
	}

	stored, err := in.repo.InsertReading(ctx, reading)
	if err != nil {
		in.logger.Error("failed to insert reading",
			"device_id", reading.DeviceID,
			"error", err,
		)
		return err
	}
	in.observer.ReadingStored()

	in.logger.Debug("successfully stored reading",
		"device_id", stored.DeviceID,
		"id", stored.ID,
	)
	if in.publisher != nil {
		in.publisher.Publish(stored)
	}
	return nil
}
