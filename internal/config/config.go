package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
)

// Common is shared by every binary.
type Common struct {
	AppEnv   string
	LogLevel slog.Level
}

type MQTT struct {
	Broker   string
	Port     int
	ClientID string
	// Topic is the subscription filter. The device ID is taken from the
	// single-level wildcard segment when a payload omits it.
	Topic string
}

type Config struct {
	Common
	HTTPAddr string

	Driver          string
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LogSQL wraps the driver so every statement is logged at debug level.
	LogSQL bool

	MQTT MQTT

	ThresholdsFile      string
	MovingAverageWindow int
	WindowCapacity      int
	DefaultTimeRange    timerange.Range
}

type SimulatorConfig struct {
	Common
	MQTT     MQTT
	Devices  []string
	Interval time.Duration
	Seed     int64
}

func LoadFromEnv() (Config, error) {
	common, err := loadCommon()
	if err != nil {
		return Config{}, err
	}

	httpAddr := envOr("HTTP_ADDR", ":8080")

	driver := envOr("DB_DRIVER", "sqlite3")
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	path := envOr("SQLITE_PATH", "data/envmonitoring.db")

	maxOpenConns, err := intEnv("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intEnv("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}

	connMaxLifetimeStr := envOr("DB_CONN_MAX_LIFETIME", "0s")
	connMaxLifetime, err := time.ParseDuration(connMaxLifetimeStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME %q: %w", connMaxLifetimeStr, err)
	}

	logSQL, err := boolEnv("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	mqttCfg, err := loadMQTT("envmonitoring-server")
	if err != nil {
		return Config{}, err
	}

	maWindow, err := intEnv("MOVING_AVERAGE_WINDOW", 5)
	if err != nil {
		return Config{}, err
	}
	if maWindow < 1 || maWindow > 100 {
		return Config{}, fmt.Errorf("invalid MOVING_AVERAGE_WINDOW %d (allowed: 1-100)", maWindow)
	}

	windowCapacity, err := intEnv("WINDOW_CAPACITY", 100)
	if err != nil {
		return Config{}, err
	}
	if windowCapacity <= 0 {
		return Config{}, fmt.Errorf("invalid WINDOW_CAPACITY %d (must be > 0)", windowCapacity)
	}

	rangeStr := envOr("DEFAULT_TIME_RANGE", string(timerange.DefaultRange))
	defaultRange, err := timerange.ParseRange(rangeStr)
	if err != nil || defaultRange == timerange.RangeCustom {
		return Config{}, fmt.Errorf("invalid DEFAULT_TIME_RANGE %q (allowed: 1h, 6h, 24h, 7d, 30d)", rangeStr)
	}

	return Config{
		Common:              common,
		HTTPAddr:            httpAddr,
		Driver:              driver,
		DSN:                 dsn,
		Path:                path,
		MaxOpenConns:        maxOpenConns,
		MaxIdleConns:        maxIdleConns,
		ConnMaxLifetime:     connMaxLifetime,
		LogSQL:              logSQL,
		MQTT:                mqttCfg,
		ThresholdsFile:      strings.TrimSpace(os.Getenv("THRESHOLDS_FILE")),
		MovingAverageWindow: maWindow,
		WindowCapacity:      windowCapacity,
		DefaultTimeRange:    defaultRange,
	}, nil
}

func LoadSimulatorFromEnv() (SimulatorConfig, error) {
	common, err := loadCommon()
	if err != nil {
		return SimulatorConfig{}, err
	}

	mqttCfg, err := loadMQTT("envmonitoring-simulator")
	if err != nil {
		return SimulatorConfig{}, err
	}

	var devices []string
	for _, d := range strings.Split(envOr("SIMULATOR_DEVICES", "device-1,device-2"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			devices = append(devices, d)
		}
	}
	if len(devices) == 0 {
		return SimulatorConfig{}, fmt.Errorf("SIMULATOR_DEVICES must name at least one device")
	}

	intervalStr := envOr("SIMULATOR_INTERVAL", "5s")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return SimulatorConfig{}, fmt.Errorf("invalid SIMULATOR_INTERVAL %q: %w", intervalStr, err)
	}
	if interval <= 0 {
		return SimulatorConfig{}, fmt.Errorf("invalid SIMULATOR_INTERVAL %q (must be > 0)", intervalStr)
	}

	seedStr := envOr("SIMULATOR_SEED", "0")
	seed, err := strconv.ParseInt(seedStr, 10, 64)
	if err != nil {
		return SimulatorConfig{}, fmt.Errorf("invalid SIMULATOR_SEED %q: %w", seedStr, err)
	}

	return SimulatorConfig{
		Common:   common,
		MQTT:     mqttCfg,
		Devices:  devices,
		Interval: interval,
		Seed:     seed,
	}, nil
}

func loadCommon() (Common, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Common{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Common{}, err
	}
	return Common{AppEnv: appEnv, LogLevel: level}, nil
}

func loadMQTT(defaultClientID string) (MQTT, error) {
	port, err := intEnv("MQTT_PORT", 1883)
	if err != nil {
		return MQTT{}, err
	}
	if port <= 0 || port > 65535 {
		return MQTT{}, fmt.Errorf("invalid MQTT_PORT %d (allowed: 1-65535)", port)
	}
	return MQTT{
		Broker:   envOr("MQTT_BROKER", "localhost"),
		Port:     port,
		ClientID: envOr("MQTT_CLIENT_ID", defaultClientID),
		Topic:    envOr("MQTT_TOPIC", "devices/+/sensor_data"),
	}, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
