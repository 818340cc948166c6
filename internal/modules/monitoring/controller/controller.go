package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/analyzer"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/live"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/repository"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/service"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

// Session is the part of service.Session the HTTP layer drives.
type Session interface {
	Settings() service.Settings
	Bounds() timerange.Bounds
	Snapshot() live.Snapshot
	Recent(d time.Duration) []types.Reading

	SelectDevice(ctx context.Context, id string) error
	SelectDate(ctx context.Context, date *time.Time) error
	SetTimeRange(sel timerange.Selection) error
	SetMovingAverageWindow(n int) error
	UpdateHealthThresholds(patch map[types.Field]health.Tier) (health.Thresholds, error)

	History(ctx context.Context) ([]types.Reading, error)
	RefreshHistory(ctx context.Context) ([]types.Reading, error)
	Statistics(ctx context.Context, field types.Field) (service.FieldStatistics, error)
	Trend(ctx context.Context, field types.Field) (service.TrendResult, error)
	Risk(ctx context.Context) (health.Assessment, error)
	Analysis(ctx context.Context) (analyzer.Result, error)
	Compare(ctx context.Context, deviceIDs []string, field types.Field) (service.Comparison, error)
}

type MonitoringController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type monitoringControllerImpl struct {
	repository repository.MonitoringRepository
	session    Session
	logger     *slog.Logger
	now        func() time.Time
}

func NewMonitoringController(repository repository.MonitoringRepository, session Session, logger *slog.Logger) MonitoringController {
	if logger == nil {
		logger = slog.Default()
	}
	return &monitoringControllerImpl{repository: repository, session: session, logger: logger, now: time.Now}
}

func (c *monitoringControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/devices", c.handleDevices)
	mux.HandleFunc("POST /api/v1/devices", c.handleCreateDevice)
	mux.HandleFunc("GET /api/v1/devices/{id}", c.handleDevice)
	mux.HandleFunc("PUT /api/v1/devices/{id}", c.handleUpdateDevice)
	mux.HandleFunc("DELETE /api/v1/devices/{id}", c.handleDeleteDevice)
	mux.HandleFunc("GET /api/v1/devices/{id}/readings", c.handleReadings)

	mux.HandleFunc("GET /api/v1/latest", c.handleLatest)
	mux.HandleFunc("GET /api/v1/live", c.handleLive)
	mux.HandleFunc("GET /api/v1/live/recent", c.handleRecent)

	mux.HandleFunc("GET /api/v1/session", c.handleSession)
	mux.HandleFunc("PUT /api/v1/session/device", c.handleSelectDevice)
	mux.HandleFunc("PUT /api/v1/session/date", c.handleSelectDate)
	mux.HandleFunc("PUT /api/v1/session/range", c.handleSetRange)
	mux.HandleFunc("PUT /api/v1/session/window", c.handleSetWindow)
	mux.HandleFunc("GET /api/v1/thresholds", c.handleThresholds)
	mux.HandleFunc("PATCH /api/v1/thresholds", c.handlePatchThresholds)

	mux.HandleFunc("GET /api/v1/range", c.handleRange)
	mux.HandleFunc("GET /api/v1/history", c.handleHistory)
	mux.HandleFunc("GET /api/v1/analytics/statistics", c.handleStatistics)
	mux.HandleFunc("GET /api/v1/analytics/trend", c.handleTrend)
	mux.HandleFunc("GET /api/v1/analytics/risk", c.handleRisk)
	mux.HandleFunc("GET /api/v1/analytics/analysis", c.handleAnalysis)
	mux.HandleFunc("GET /api/v1/analytics/compare", c.handleCompare)
}
