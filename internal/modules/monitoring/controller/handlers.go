package controller

import (
	"cmp"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/repository"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/service"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/timerange"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
	"github.com/he1nht3t/envmonitoring-web/internal/utils"
)

func (c *monitoringControllerImpl) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := c.repository.ListDevices(r.Context())
	if err != nil {
		c.logger.Error("list devices failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load devices")
		return
	}
	utils.WriteJSON(w, http.StatusOK, devices)
}

func (c *monitoringControllerImpl) handleDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device id")
		return
	}
	d, err := c.repository.GetDevice(r.Context(), id)
	if err != nil {
		status := sessionStatus(err)
		if status == http.StatusInternalServerError {
			c.logger.Error("get device failed", "device_id", id, "error", err)
		}
		utils.WriteError(w, status, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, d)
}

func (c *monitoringControllerImpl) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var d types.Device
	if err := utils.DecodeJSON(w, r, &d); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device name")
		return
	}
	created, err := c.repository.CreateDevice(r.Context(), d)
	if err != nil {
		status := sessionStatus(err)
		if status == http.StatusInternalServerError {
			c.logger.Error("create device failed", "error", err)
		}
		utils.WriteError(w, status, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusCreated, created)
}

func (c *monitoringControllerImpl) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device id")
		return
	}
	var d types.Device
	if err := utils.DecodeJSON(w, r, &d); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.ID = id
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device name")
		return
	}
	if err := c.repository.UpdateDevice(r.Context(), d); err != nil {
		status := sessionStatus(err)
		if status == http.StatusInternalServerError {
			c.logger.Error("update device failed", "device_id", id, "error", err)
		}
		utils.WriteError(w, status, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, d)
}

func (c *monitoringControllerImpl) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device id")
		return
	}
	if err := c.repository.DeleteDevice(r.Context(), id); err != nil {
		status := sessionStatus(err)
		if status == http.StatusInternalServerError {
			c.logger.Error("delete device failed", "device_id", id, "error", err)
		}
		utils.WriteError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *monitoringControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device id")
		return
	}

	from, to, limit, err := parseReadingsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := c.repository.ListReadings(r.Context(), repository.ReadingsQuery{
		DeviceID: id,
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		c.logger.Error("list readings failed", "device_id", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := c.repository.CountReadings(r.Context(), id, from, to)
	if err != nil {
		c.logger.Error("count readings failed", "device_id", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	utils.WriteJSON(w, http.StatusOK, readings)
}

type latestResponse struct {
	Readings []types.Reading `json:"readings"`
	Version  uint64          `json:"version"`
}

func (c *monitoringControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap := c.session.Snapshot()
	readings := make([]types.Reading, 0, len(snap.Latest))
	for _, rd := range snap.Latest {
		readings = append(readings, rd)
	}
	slices.SortFunc(readings, func(a, b types.Reading) int { return cmp.Compare(a.DeviceID, b.DeviceID) })
	utils.WriteJSON(w, http.StatusOK, latestResponse{Readings: readings, Version: snap.Version})
}

func (c *monitoringControllerImpl) handleLive(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.session.Snapshot())
}

func (c *monitoringControllerImpl) handleRecent(w http.ResponseWriter, r *http.Request) {
	within, err := parseWithin(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.session.Recent(within))
}

type sessionResponse struct {
	Settings service.Settings `json:"settings"`
	Bounds   timerange.Bounds `json:"bounds"`
}

func (c *monitoringControllerImpl) writeSession(w http.ResponseWriter) {
	utils.WriteJSON(w, http.StatusOK, sessionResponse{
		Settings: c.session.Settings(),
		Bounds:   c.session.Bounds(),
	})
}

func (c *monitoringControllerImpl) handleSession(w http.ResponseWriter, r *http.Request) {
	c.writeSession(w)
}

// writeFetchError reports a failed selection reload. The selection itself
// has already changed.
func writeFetchError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrStale) {
		utils.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	utils.WriteError(w, http.StatusBadGateway, err.Error())
}

func (c *monitoringControllerImpl) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceID string `json:"device_id"`
	}
	if err := utils.DecodeJSON(w, r, &body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.session.SelectDevice(r.Context(), strings.TrimSpace(body.DeviceID)); err != nil {
		writeFetchError(w, err)
		return
	}
	c.writeSession(w)
}

func (c *monitoringControllerImpl) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date *string `json:"date"`
	}
	if err := utils.DecodeJSON(w, r, &body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var date *time.Time
	if body.Date != nil && strings.TrimSpace(*body.Date) != "" {
		d, err := parseTimestamp(*body.Date)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid 'date' (expected ISO 8601)")
			return
		}
		date = &d
	}
	if err := c.session.SelectDate(r.Context(), date); err != nil {
		writeFetchError(w, err)
		return
	}
	c.writeSession(w)
}

type rangeBody struct {
	Range string `json:"range"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (b rangeBody) selection() (timerange.Selection, error) {
	rng, err := timerange.ParseRange(b.Range)
	if err != nil {
		return timerange.Selection{}, err
	}
	sel := timerange.Selection{Range: rng}
	if rng != timerange.RangeCustom {
		return sel, nil
	}
	if b.Start == "" || b.End == "" {
		return timerange.Selection{}, errors.New("custom range needs 'start' and 'end'")
	}
	if sel.Start, err = parseTimestamp(b.Start); err != nil {
		return timerange.Selection{}, errors.New("invalid 'start' (expected ISO 8601)")
	}
	if sel.End, err = parseTimestamp(b.End); err != nil {
		return timerange.Selection{}, errors.New("invalid 'end' (expected ISO 8601)")
	}
	return sel, nil
}

func (c *monitoringControllerImpl) handleSetRange(w http.ResponseWriter, r *http.Request) {
	var body rangeBody
	if err := utils.DecodeJSON(w, r, &body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sel, err := body.selection()
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.session.SetTimeRange(sel); err != nil {
		utils.WriteError(w, sessionStatus(err), err.Error())
		return
	}
	c.writeSession(w)
}

func (c *monitoringControllerImpl) handleSetWindow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Window int `json:"window"`
	}
	if err := utils.DecodeJSON(w, r, &body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.session.SetMovingAverageWindow(body.Window); err != nil {
		utils.WriteError(w, sessionStatus(err), err.Error())
		return
	}
	c.writeSession(w)
}

func (c *monitoringControllerImpl) handleThresholds(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.session.Settings().Thresholds)
}

func (c *monitoringControllerImpl) handlePatchThresholds(w http.ResponseWriter, r *http.Request) {
	var body map[string]health.Tier
	if err := utils.DecodeJSON(w, r, &body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch := make(map[types.Field]health.Tier, len(body))
	for name, tier := range body {
		f, err := types.ParseField(name)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if f == types.FieldRainIntensity {
			utils.WriteError(w, http.StatusBadRequest, "rain_intensity has no health thresholds")
			return
		}
		patch[f] = tier
	}
	merged, err := c.session.UpdateHealthThresholds(patch)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, merged)
}

// handleRange resolves a selection without changing the session. An unknown
// range resolves like the default.
func (c *monitoringControllerImpl) handleRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := c.now()
	if s := q.Get("date"); s != "" {
		d, err := parseTimestamp(s)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid 'date' (expected ISO 8601)")
			return
		}
		ref = d
	}

	sel := timerange.Selection{Range: timerange.Range(strings.ToLower(q.Get("range")))}
	if sel.Range == timerange.RangeCustom {
		custom, err := rangeBody{Range: "custom", Start: q.Get("start"), End: q.Get("end")}.selection()
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		sel = custom
	}
	utils.WriteJSON(w, http.StatusOK, timerange.Resolve(sel, ref))
}

func (c *monitoringControllerImpl) handleHistory(w http.ResponseWriter, r *http.Request) {
	load := c.session.History
	if r.URL.Query().Get("refresh") == "true" {
		load = c.session.RefreshHistory
	}
	readings, err := load(r.Context())
	if err != nil {
		c.writeAnalyticsError(w, "history", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, readings)
}

func (c *monitoringControllerImpl) writeAnalyticsError(w http.ResponseWriter, op string, err error) {
	status := sessionStatus(err)
	if status >= http.StatusInternalServerError {
		c.logger.Error("analytics request failed", "op", op, "error", err)
	}
	utils.WriteError(w, status, err.Error())
}

func (c *monitoringControllerImpl) handleStatistics(w http.ResponseWriter, r *http.Request) {
	field, err := parseFieldQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := c.session.Statistics(r.Context(), field)
	if err != nil {
		c.writeAnalyticsError(w, "statistics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (c *monitoringControllerImpl) handleTrend(w http.ResponseWriter, r *http.Request) {
	field, err := parseFieldQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := c.session.Trend(r.Context(), field)
	if err != nil {
		c.writeAnalyticsError(w, "trend", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (c *monitoringControllerImpl) handleRisk(w http.ResponseWriter, r *http.Request) {
	res, err := c.session.Risk(r.Context())
	if err != nil {
		c.writeAnalyticsError(w, "risk", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (c *monitoringControllerImpl) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := c.session.Analysis(r.Context())
	if err != nil {
		c.writeAnalyticsError(w, "analysis", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (c *monitoringControllerImpl) handleCompare(w http.ResponseWriter, r *http.Request) {
	field, err := parseFieldQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	devices := r.URL.Query().Get("devices")
	if strings.TrimSpace(devices) == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing 'devices'")
		return
	}
	res, err := c.session.Compare(r.Context(), strings.Split(devices, ","), field)
	if err != nil {
		c.writeAnalyticsError(w, "compare", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}
