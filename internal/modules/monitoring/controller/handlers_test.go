package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/feed"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/repository"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/service"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

var testNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

type mockRepo struct {
	devices     []types.Device
	devicesErr  error
	readings    []types.Reading
	readingsErr error
	historyErr  error
	mutateErr   error
	lastQuery   repository.ReadingsQuery
}

func (m *mockRepo) ListDevices(ctx context.Context) ([]types.Device, error) {
	return m.devices, m.devicesErr
}

func (m *mockRepo) GetDevice(ctx context.Context, id string) (types.Device, error) {
	for _, d := range m.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return types.Device{}, repository.ErrDeviceNotFound
}

func (m *mockRepo) CreateDevice(ctx context.Context, d types.Device) (types.Device, error) {
	if m.mutateErr != nil {
		return types.Device{}, m.mutateErr
	}
	if d.ID == "" {
		d.ID = "new-id"
	}
	return d, nil
}

func (m *mockRepo) UpdateDevice(ctx context.Context, d types.Device) error { return m.mutateErr }

func (m *mockRepo) DeleteDevice(ctx context.Context, id string) error { return m.mutateErr }

func (m *mockRepo) EnsureDevice(ctx context.Context, id string) error { return m.mutateErr }

func (m *mockRepo) ListReadings(ctx context.Context, q repository.ReadingsQuery) ([]types.Reading, error) {
	m.lastQuery = q
	return m.readings, m.readingsErr
}

func (m *mockRepo) CountReadings(ctx context.Context, deviceID string, from, to time.Time) (int, error) {
	return len(m.readings), m.readingsErr
}

func (m *mockRepo) ListAllReadings(ctx context.Context, deviceID string, from, to time.Time) ([]types.Reading, error) {
	return m.readings, m.historyErr
}

func (m *mockRepo) LatestPerDevice(ctx context.Context, from, to time.Time) ([]types.Reading, error) {
	return m.readings, m.readingsErr
}

func (m *mockRepo) InsertReading(ctx context.Context, r types.Reading) (types.Reading, error) {
	return r, m.mutateErr
}

func newController(t *testing.T, repo *mockRepo) (*monitoringControllerImpl, *http.ServeMux) {
	t.Helper()
	session := service.NewSession(repo, feed.New(), service.DefaultSettings(),
		service.WithClock(func() time.Time { return testNow }))
	t.Cleanup(session.Close)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("session start: %v", err)
	}
	ctrl := NewMonitoringController(repo, session, slog.New(slog.NewTextHandler(io.Discard, nil))).(*monitoringControllerImpl)
	ctrl.now = func() time.Time { return testNow }
	mux := http.NewServeMux()
	ctrl.RegisterRoutes(mux)
	return ctrl, mux
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func seededRepo() *mockRepo {
	return &mockRepo{
		devices: []types.Device{{ID: "dev-1", Name: "Rooftop"}},
		readings: []types.Reading{
			{ID: "r1", DeviceID: "dev-1", Temperature: 20, CO2: 400, CreatedAt: testNow.Add(-2 * time.Hour)},
			{ID: "r2", DeviceID: "dev-1", Temperature: 24, CO2: 600, CreatedAt: testNow.Add(-time.Hour)},
		},
	}
}

func Test_handleDevices(t *testing.T) {
	t.Run("returns devices", func(t *testing.T) {
		ctrl, _ := newController(t, seededRepo())
		rec := httptest.NewRecorder()
		ctrl.handleDevices(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		var got []types.Device
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 || got[0].Name != "Rooftop" {
			t.Errorf("got %+v; want one Rooftop device", got)
		}
	})

	t.Run("returns 500 on repository error", func(t *testing.T) {
		repo := seededRepo()
		ctrl, _ := newController(t, repo)
		var logs bytes.Buffer
		ctrl.logger = slog.New(slog.NewTextHandler(&logs, nil))
		repo.devicesErr = errors.New("db error")
		rec := httptest.NewRecorder()
		ctrl.handleDevices(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		if !strings.Contains(logs.String(), "list devices failed") || !strings.Contains(logs.String(), "db error") {
			t.Errorf("logs = %q; want the failure on the controller's logger", logs.String())
		}
	})
}

func Test_handleDevice(t *testing.T) {
	_, mux := newController(t, seededRepo())

	rec := serve(mux, http.MethodGet, "/api/v1/devices/dev-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	var got types.Device
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "dev-1" || got.Name != "Rooftop" {
		t.Errorf("got %+v; want dev-1 Rooftop", got)
	}

	if rec := serve(mux, http.MethodGet, "/api/v1/devices/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d; want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeviceMutations(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		mutateErr  error
		wantStatus int
	}{
		{"create", http.MethodPost, "/api/v1/devices", `{"name":"Garden","lat":1.5,"long":2.5}`, nil, http.StatusCreated},
		{"create without name", http.MethodPost, "/api/v1/devices", `{"lat":1}`, nil, http.StatusBadRequest},
		{"create duplicate", http.MethodPost, "/api/v1/devices", `{"id":"dev-1","name":"x"}`, repository.ErrDeviceExists, http.StatusConflict},
		{"create bad json", http.MethodPost, "/api/v1/devices", `{"name":`, nil, http.StatusBadRequest},
		{"update", http.MethodPut, "/api/v1/devices/dev-1", `{"name":"Roof"}`, nil, http.StatusOK},
		{"update missing", http.MethodPut, "/api/v1/devices/nope", `{"name":"Roof"}`, repository.ErrDeviceNotFound, http.StatusNotFound},
		{"delete", http.MethodDelete, "/api/v1/devices/dev-1", "", nil, http.StatusNoContent},
		{"delete missing", http.MethodDelete, "/api/v1/devices/nope", "", repository.ErrDeviceNotFound, http.StatusNotFound},
		{"delete db error", http.MethodDelete, "/api/v1/devices/dev-1", "", errors.New("locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := seededRepo()
			_, mux := newController(t, repo)
			repo.mutateErr = tt.mutateErr

			rec := serve(mux, tt.method, tt.target, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d; want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func Test_handleReadings(t *testing.T) {
	t.Run("passes parsed query to repository", func(t *testing.T) {
		repo := seededRepo()
		ctrl, _ := newController(t, repo)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/dev-1/readings?limit=5&from=2024-01-15&to=2024-01-15T10:00:00%2B02:00", nil)
		req.SetPathValue("id", "dev-1")
		rec := httptest.NewRecorder()

		ctrl.handleReadings(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
		}
		q := repo.lastQuery
		if q.DeviceID != "dev-1" || q.Limit != 5 {
			t.Errorf("query = %+v; want dev-1 limit 5", q)
		}
		if !q.From.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("from = %s; want midnight UTC", q.From)
		}
		if !q.To.Equal(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)) {
			t.Errorf("to = %s; want 08:00 UTC", q.To)
		}
		if got := rec.Header().Get("X-Total-Count"); got != "2" {
			t.Errorf("X-Total-Count = %q; want %q", got, "2")
		}
	})

	t.Run("returns 400 on bad limit", func(t *testing.T) {
		ctrl, _ := newController(t, seededRepo())
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/dev-1/readings?limit=abc", nil)
		req.SetPathValue("id", "dev-1")
		rec := httptest.NewRecorder()

		ctrl.handleReadings(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), "invalid 'limit'") {
			t.Errorf("body = %q; want limit error", rec.Body.String())
		}
	})

	t.Run("returns 400 when id is missing", func(t *testing.T) {
		ctrl, _ := newController(t, seededRepo())
		rec := httptest.NewRecorder()
		ctrl.handleReadings(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices//readings", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestLiveEndpoints(t *testing.T) {
	_, mux := newController(t, seededRepo())

	rec := serve(mux, http.MethodGet, "/api/v1/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("latest status = %d", rec.Code)
	}
	var latest latestResponse
	if err := json.NewDecoder(rec.Body).Decode(&latest); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if len(latest.Readings) != 1 || latest.Readings[0].ID != "r2" {
		t.Errorf("latest = %+v; want r2 only", latest.Readings)
	}

	rec = serve(mux, http.MethodGet, "/api/v1/live/recent?within=PT90M", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recent status = %d", rec.Code)
	}
	var recent []types.Reading
	if err := json.NewDecoder(rec.Body).Decode(&recent); err != nil {
		t.Fatalf("decode recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "r2" {
		t.Errorf("recent = %+v; want r2 only", recent)
	}

	rec = serve(mux, http.MethodGet, "/api/v1/live/recent?within=5m", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad within status = %d; want 400", rec.Code)
	}

	rec = serve(mux, http.MethodGet, "/api/v1/live", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"state":"ready"`) {
		t.Errorf("live = %d %s; want ready snapshot", rec.Code, rec.Body.String())
	}
}

func TestSessionEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"valid range", "/api/v1/session/range", `{"range":"7d"}`, http.StatusOK, `"range":"7d"`},
		{"unknown range", "/api/v1/session/range", `{"range":"2h"}`, http.StatusBadRequest, "invalid range"},
		{"custom inverted", "/api/v1/session/range", `{"range":"custom","start":"2024-01-15T10:00:00Z","end":"2024-01-15T09:00:00Z"}`, http.StatusBadRequest, "invalid time range"},
		{"custom missing end", "/api/v1/session/range", `{"range":"custom","start":"2024-01-15"}`, http.StatusBadRequest, "needs 'start' and 'end'"},
		{"window", "/api/v1/session/window", `{"window":12}`, http.StatusOK, `"moving_average_window":12`},
		{"window zero", "/api/v1/session/window", `{"window":0}`, http.StatusBadRequest, "moving average window"},
		{"date", "/api/v1/session/date", `{"date":"2024-01-15"}`, http.StatusOK, `"selected_date":"2024-01-15T00:00:00Z"`},
		{"date cleared", "/api/v1/session/date", `{"date":null}`, http.StatusOK, `"selected_device":"dev-1"`},
		{"date invalid", "/api/v1/session/date", `{"date":"yesterday"}`, http.StatusBadRequest, "invalid 'date'"},
		{"device", "/api/v1/session/device", `{"device_id":"dev-1"}`, http.StatusOK, `"selected_device":"dev-1"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux := newController(t, seededRepo())
			rec := serve(mux, http.MethodPut, tt.target, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d; want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s; want it to contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestSelectDevice_FetchFailure(t *testing.T) {
	repo := seededRepo()
	_, mux := newController(t, repo)
	repo.readingsErr = errors.New("disk I/O error")

	rec := serve(mux, http.MethodPut, "/api/v1/session/device", `{"device_id":"dev-2"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestThresholdEndpoints(t *testing.T) {
	_, mux := newController(t, seededRepo())

	rec := serve(mux, http.MethodPatch, "/api/v1/thresholds", `{"co2":{"moderate":800,"unhealthy":2000,"dangerous":5000}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = serve(mux, http.MethodGet, "/api/v1/thresholds", "")
	var got health.Thresholds
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[types.FieldCO2].Moderate != 800 {
		t.Errorf("co2 moderate = %v; want 800", got[types.FieldCO2].Moderate)
	}
	if got[types.FieldCO].Moderate != 9 {
		t.Errorf("co moderate = %v; want default 9", got[types.FieldCO].Moderate)
	}

	for _, body := range []string{
		`{"co2":{"moderate":800,"unhealthy":700,"dangerous":5000}}`,
		`{"ozone":{"moderate":1,"unhealthy":2,"dangerous":3}}`,
		`{"rain_intensity":{"moderate":1,"unhealthy":2,"dangerous":3}}`,
	} {
		rec = serve(mux, http.MethodPatch, "/api/v1/thresholds", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("PATCH %s status = %d; want 400", body, rec.Code)
		}
	}
}

func Test_handleRange(t *testing.T) {
	_, mux := newController(t, seededRepo())

	rec := serve(mux, http.MethodGet, "/api/v1/range?range=1h&date=2024-03-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var b timerange.Bounds
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !b.HalfOpen || !b.Start.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) || !b.End.Equal(time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("bounds = %+v; want [00:00, 01:00) on 2024-03-10", b)
	}

	rec = serve(mux, http.MethodGet, "/api/v1/range?range=bogus", "")
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.HalfOpen || !b.Start.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unknown range bounds = %+v; want the 24h day", b)
	}

	rec = serve(mux, http.MethodGet, "/api/v1/range?range=custom&start=2024-01-01", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("custom without end status = %d; want 400", rec.Code)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	t.Run("statistics", func(t *testing.T) {
		_, mux := newController(t, seededRepo())
		rec := serve(mux, http.MethodGet, "/api/v1/analytics/statistics?field=temperature", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
		}
		var got service.FieldStatistics
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Mean != 22 || got.Count != 2 {
			t.Errorf("stats = %+v; want mean 22 over 2 readings", got)
		}
	})

	t.Run("field validation", func(t *testing.T) {
		_, mux := newController(t, seededRepo())
		for _, target := range []string{"/api/v1/analytics/trend", "/api/v1/analytics/trend?field=ozone"} {
			if rec := serve(mux, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
				t.Errorf("GET %s status = %d; want 400", target, rec.Code)
			}
		}
	})

	t.Run("trend accepts camelCase field", func(t *testing.T) {
		_, mux := newController(t, seededRepo())
		rec := serve(mux, http.MethodGet, "/api/v1/analytics/trend?field=soundIntensity", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"field":"sound_intensity"`) {
			t.Errorf("trend = %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("risk and analysis", func(t *testing.T) {
		_, mux := newController(t, seededRepo())
		for _, target := range []string{"/api/v1/analytics/risk", "/api/v1/analytics/analysis", "/api/v1/history"} {
			if rec := serve(mux, http.MethodGet, target, ""); rec.Code != http.StatusOK {
				t.Errorf("GET %s status = %d; want 200 (%s)", target, rec.Code, rec.Body.String())
			}
		}
	})

	t.Run("no device selected", func(t *testing.T) {
		_, mux := newController(t, &mockRepo{})
		rec := serve(mux, http.MethodGet, "/api/v1/analytics/risk", "")
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusConflict)
		}
	})

	t.Run("compare", func(t *testing.T) {
		_, mux := newController(t, seededRepo())
		rec := serve(mux, http.MethodGet, "/api/v1/analytics/compare?devices=dev-1&field=co2", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
		}
		var got service.Comparison
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got.Devices) != 1 || len(got.Points) != 2 {
			t.Fatalf("comparison = %+v; want one device over two points", got)
		}
		if v := got.Points[1].Values["dev-1"]; v != 600 {
			t.Errorf("latest co2 = %v; want 600", v)
		}
	})

	t.Run("compare validation", func(t *testing.T) {
		_, mux := newController(t, seededRepo())
		for _, target := range []string{
			"/api/v1/analytics/compare?field=co2",
			"/api/v1/analytics/compare?devices=dev-1",
			"/api/v1/analytics/compare?devices=,,&field=co2",
			"/api/v1/analytics/compare?devices=1,2,3,4,5,6,7,8,9&field=co2",
		} {
			if rec := serve(mux, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
				t.Errorf("GET %s status = %d; want 400", target, rec.Code)
			}
		}
	})

	t.Run("compare fetch failure", func(t *testing.T) {
		repo := seededRepo()
		_, mux := newController(t, repo)
		repo.readingsErr = errors.New("disk I/O error")
		rec := serve(mux, http.MethodGet, "/api/v1/analytics/compare?devices=dev-1&field=co2", "")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadGateway)
		}
	})

	t.Run("history unavailable", func(t *testing.T) {
		repo := seededRepo()
		repo.historyErr = errors.New("disk I/O error")
		_, mux := newController(t, repo)
		rec := serve(mux, http.MethodGet, "/api/v1/analytics/analysis", "")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadGateway)
		}
	})
}
