package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/config"
)

func NewServer(cfg config.Config, mux *http.ServeMux, logger *slog.Logger, obs RequestObserver) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(mux, logger, obs),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
