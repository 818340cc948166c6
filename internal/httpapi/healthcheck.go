package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/utils"
)

// MQTTStatus reports broker connectivity; the subscriber satisfies it.
type MQTTStatus interface {
	IsConnected() bool
}

type healthchecker struct {
	db   *sql.DB
	mqtt MQTTStatus
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	MQTT     string `json:"mqtt,omitempty"`
}

// handleHealthz fails only on the database. A disconnected broker degrades
// live updates but history and analytics still work.
func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var ok int
	if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	resp := healthResponse{Status: "ok", Database: "ok"}
	if h.mqtt != nil {
		resp.MQTT = "connected"
		if !h.mqtt.IsConnected() {
			resp.MQTT = "disconnected"
		}
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, mqtt MQTTStatus) {
	h := &healthchecker{db: db, mqtt: mqtt}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
