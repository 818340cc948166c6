// Package metrics exposes Prometheus collectors for ingest, the live
// reconciler, session fetches and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/live"
)

const namespace = "envmon"

type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	mqttReceived   prometheus.Counter
	mqttInvalid    *prometheus.CounterVec
	readingsStored prometheus.Counter
	lastReading    prometheus.Gauge
	liveEvents     *prometheus.CounterVec
	windowLength   prometheus.Gauge
	staleFetches   *prometheus.CounterVec
	failedFetches  *prometheus.CounterVec

	now func() time.Time
}

// New registers all collectors on reg, or on prometheus.DefaultRegisterer
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		mqttReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_received_total",
			Help:      "MQTT messages received on the sensor topic.",
		}),
		mqttInvalid: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_invalid_total",
			Help:      "MQTT messages dropped before ingest, by reason.",
		}, []string{"reason"}),
		readingsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_stored_total",
			Help:      "Readings inserted into the database.",
		}),
		lastReading: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading_timestamp_seconds",
			Help:      "Unix time of the last stored reading; 0 until one arrives.",
		}),
		liveEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_events_total",
			Help:      "Insert events seen by the live reconciler, by outcome.",
		}, []string{"outcome"}),
		windowLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_window_length",
			Help:      "Readings held in the selected device window.",
		}),
		staleFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_stale_fetches_total",
			Help:      "Fetch results discarded because a newer selection superseded them.",
		}, []string{"op"}),
		failedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_failed_fetches_total",
			Help:      "Fetches that failed at the data-access layer.",
		}, []string{"op"}),
		now: time.Now,
	}
}

func (m *Metrics) ReadingStored() {
	m.readingsStored.Inc()
	m.lastReading.Set(float64(m.now().Unix()))
}

func (m *Metrics) LiveEvent(o live.Outcome) { m.liveEvents.WithLabelValues(string(o)).Inc() }

func (m *Metrics) WindowLength(n int) { m.windowLength.Set(float64(n)) }

func (m *Metrics) StaleFetch(op string) { m.staleFetches.WithLabelValues(op).Inc() }

func (m *Metrics) FetchFailed(op string) { m.failedFetches.WithLabelValues(op).Inc() }

func (m *Metrics) MessageReceived() { m.mqttReceived.Inc() }

func (m *Metrics) MessageInvalid(reason string) { m.mqttInvalid.WithLabelValues(reason).Inc() }

// ObserveRequest records one served request. route should be the matched
// mux pattern so label cardinality stays bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
