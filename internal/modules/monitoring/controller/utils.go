package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/health"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/repository"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/service"
	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

const (
	defaultLimit  = 100
	maxLimit      = 1000
	defaultWithin = 5 * time.Minute
)

func parseReadingsQuery(r *http.Request) (from time.Time, to time.Time, limit int, err error) {
	q := r.URL.Query()

	if s := q.Get("from"); s != "" {
		from, err = parseTimestamp(s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'from' (expected ISO 8601)")
		}
	}
	if s := q.Get("to"); s != "" {
		to, err = parseTimestamp(s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'to' (expected ISO 8601)")
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, 0, errors.New("'from' must be <= 'to'")
	}

	limit = defaultLimit
	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return time.Time{}, time.Time{}, 0, errors.New("'limit' must be > 0")
		}
		if n > maxLimit {
			return time.Time{}, time.Time{}, 0, fmt.Errorf("'limit' must be <= %d", maxLimit)
		}
		limit = n
	}

	return from, to, limit, nil
}

// parseTimestamp accepts any ISO 8601 date-time. A bare date means midnight
// UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "tT") {
		s += "T00:00:00Z"
	}
	return iso8601.ParseString(s)
}

func parseWithin(r *http.Request) (time.Duration, error) {
	s := strings.TrimSpace(r.URL.Query().Get("within"))
	if s == "" {
		return defaultWithin, nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, errors.New("invalid 'within' (expected ISO 8601 duration, e.g. PT5M)")
	}
	td := d.ToTimeDuration()
	if td <= 0 {
		return 0, errors.New("'within' must be > 0")
	}
	return td, nil
}

func parseFieldQuery(r *http.Request) (types.Field, error) {
	s := r.URL.Query().Get("field")
	if s == "" {
		return "", errors.New("missing 'field'")
	}
	return types.ParseField(s)
}

// sessionStatus maps session and repository errors to HTTP status codes.
func sessionStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidWindow),
		errors.Is(err, service.ErrEmptyRange),
		errors.Is(err, service.ErrInvalidComparison),
		errors.Is(err, health.ErrNonMonotonicTier):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoDevice),
		errors.Is(err, service.ErrStale),
		errors.Is(err, repository.ErrDeviceExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoHistory):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
