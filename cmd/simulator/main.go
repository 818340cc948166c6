package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/he1nht3t/envmonitoring-web/internal/config"
	"github.com/he1nht3t/envmonitoring-web/internal/logging"
	"github.com/he1nht3t/envmonitoring-web/internal/mqtt"
	"github.com/he1nht3t/envmonitoring-web/internal/simulator"
)

const appName = "simulator"

var version = "dev"

func main() {
	cfg, err := config.LoadSimulatorFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Common, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"broker", cfg.MQTT.Broker,
		"port", cfg.MQTT.Port,
		"topic", cfg.MQTT.Topic,
		"devices", cfg.Devices,
		"interval", cfg.Interval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
	slog.Info("shutting down")
}

func run(ctx context.Context, cfg config.SimulatorConfig, logger *slog.Logger) error {
	pub, err := mqtt.NewPublisher(cfg.MQTT, logger)
	if err != nil {
		return err
	}
	defer pub.Disconnect()

	if err := pub.Connect(ctx); err != nil {
		return err
	}
	return simulator.Run(ctx, pub, simulator.NewGenerator(cfg.Seed), cfg.Devices, cfg.Interval, logger)
}
