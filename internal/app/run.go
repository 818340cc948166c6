package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/he1nht3t/envmonitoring-web/internal/config"
	"github.com/he1nht3t/envmonitoring-web/internal/db"
	"github.com/he1nht3t/envmonitoring-web/internal/httpapi"
	"github.com/he1nht3t/envmonitoring-web/internal/metrics"
	"github.com/he1nht3t/envmonitoring-web/internal/migrate"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/service"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
	"github.com/he1nht3t/envmonitoring-web/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"dbLogSQL", cfg.LogSQL,
		"mqttBroker", cfg.MQTT.Broker,
		"mqttPort", cfg.MQTT.Port,
		"mqttTopic", cfg.MQTT.Topic,
		"thresholdsFile", cfg.ThresholdsFile,
		"movingAverageWindow", cfg.MovingAverageWindow,
		"windowCapacity", cfg.WindowCapacity,
		"defaultTimeRange", cfg.DefaultTimeRange,
	)

	settings, err := sessionSettings(cfg)
	if err != nil {
		return err
	}

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if _, err := migrate.Run(ctx, dbConn, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var ok int
	if err := dbConn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	logger.Info("database connection successful")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	subscriber, err := mqtt.NewSubscriber(cfg.MQTT, logger, mqtt.WithRecorder(m))
	if err != nil {
		return err
	}

	mux := httpapi.NewMux(dbConn, subscriber, registry)

	// The ingest handler must be attached before Connect: the broker may
	// deliver right after the subscription is acknowledged.
	feature, err := monitoring.RegisterFeature(ctx, mux, dbConn, monitoring.Options{
		Settings:       settings,
		WindowCapacity: cfg.WindowCapacity,
		Observer:       m,
		Logger:         logger,
		Source:         subscriber,
	})
	if err != nil {
		return err
	}
	defer feature.Session.Close()

	// A short connect timeout keeps startup going when the broker is down;
	// paho keeps retrying in the background.
	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	err = subscriber.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
	}

	srv := httpapi.NewServer(cfg, mux, logger, m)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		subscriber.Disconnect()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("mqtt disconnecting")
	subscriber.Disconnect()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

// sessionSettings builds the initial dashboard settings from cfg, merging
// the thresholds file onto the defaults when one is configured.
func sessionSettings(cfg config.Config) (service.Settings, error) {
	settings := service.DefaultSettings()
	settings.MovingAverageWindow = cfg.MovingAverageWindow
	if cfg.DefaultTimeRange != "" {
		settings.Selection = timerange.Selection{Range: cfg.DefaultTimeRange}
	}
	if cfg.ThresholdsFile != "" {
		th, err := health.LoadFile(cfg.ThresholdsFile)
		if err != nil {
			return service.Settings{}, fmt.Errorf("thresholds file %s: %w", cfg.ThresholdsFile, err)
		}
		settings.Thresholds = th
	}
	if err := service.ValidateWindow(settings.MovingAverageWindow); err != nil {
		return service.Settings{}, err
	}
	return settings, nil
}
