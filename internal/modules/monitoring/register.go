package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/controller"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/feed"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/repository"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/service"
)

type Options struct {
	Settings       service.Settings
	WindowCapacity int
	// DisableAutoRegister rejects readings from devices that were not created
	// through the API.
	DisableAutoRegister bool
	Observer            service.Observer
	Logger              *slog.Logger
	// Source delivers incoming readings, normally the MQTT subscriber. It may
	// be nil, in which case nothing is ingested.
	Source service.MessageSource
}

type Feature struct {
	Repository repository.MonitoringRepository
	Feed       *feed.Feed
	Session    *service.Session
	Ingestor   *service.Ingestor
}

// RegisterFeature wires the monitoring module onto mux and starts its
// session. The caller closes the session on shutdown.
func RegisterFeature(ctx context.Context, mux *http.ServeMux, db *sql.DB, opts Options) (*Feature, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repo := repository.NewRepository(db)
	inserts := feed.New()

	ingestor := service.NewIngestor(repo, inserts,
		service.WithIngestLogger(logger),
		service.WithIngestObserver(opts.Observer),
		service.WithAutoRegister(!opts.DisableAutoRegister),
	)
	if opts.Source != nil {
		ingestor.Register(opts.Source)
	}

	sessionOpts := []service.Option{
		service.WithLogger(logger),
		service.WithObserver(opts.Observer),
	}
	if opts.WindowCapacity > 0 {
		sessionOpts = append(sessionOpts, service.WithWindowCapacity(opts.WindowCapacity))
	}
	session := service.NewSession(repo, inserts, opts.Settings, sessionOpts...)
	if err := session.Start(ctx); err != nil {
		session.Close()
		return nil, fmt.Errorf("monitoring: %w", err)
	}

	controller.NewMonitoringController(repo, session, logger).RegisterRoutes(mux)

	return &Feature{
		Repository: repo,
		Feed:       inserts,
		Session:    session,
		Ingestor:   ingestor,
	}, nil
}
