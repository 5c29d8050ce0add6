// Package telemetry exposes Prometheus metrics for the HTTP surface, the
// database pool and the care domain.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	Namespace      string
	ServiceVersion string
	Environment    string
	// MetricsDisabled turns every recorder into a no-op while keeping the
	// handler available.
	MetricsDisabled bool
}

func (c *TelemetryConfig) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "ceres"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

var defaultDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// TelemetryProvider owns a private registry so tests and multiple servers in
// one process do not collide on the default one.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	riskVerdicts   *prometheus.CounterVec
	documentSends  *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	constLabels := prometheus.Labels{"version": cfg.ServiceVersion, "environment": cfg.Environment}

	return &TelemetryProvider{
		cfg:      cfg,
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     defaultDurationBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being served",
			ConstLabels: constLabels,
		}),
		riskVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "risk_assessments_total",
			Help:      "Obstetric risk classifications by verdict",
		}, []string{"level"}),
		documentSends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "care_document_dispatches_total",
			Help:      "Care track document dispatches by outcome",
		}, []string{"outcome"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "patient_sessions_active",
			Help:      "Patient sessions held in memory",
		}),
	}
}

// RegisterDBPool publishes pgx pool statistics as gauges.
func (tp *TelemetryProvider) RegisterDBPool(pool *pgxpool.Pool) {
	ns := tp.cfg.Namespace
	stat := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: ns, Name: name, Help: help},
			func() float64 { return fn(pool.Stat()) })
	}
	tp.registry.MustRegister(
		stat("db_pool_acquired_conns", "Connections currently in use", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		stat("db_pool_idle_conns", "Idle connections", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		stat("db_pool_total_conns", "Total connections", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
	)
}

// RiskVerdict counts a risk classification.
func (tp *TelemetryProvider) RiskVerdict(level string) {
	if tp.cfg.MetricsDisabled {
		return
	}
	tp.riskVerdicts.WithLabelValues(level).Inc()
}

// DocumentDispatch counts a document dispatch outcome.
func (tp *TelemetryProvider) DocumentDispatch(outcome string) {
	if tp.cfg.MetricsDisabled {
		return
	}
	tp.documentSends.WithLabelValues(outcome).Inc()
}

// SetActiveSessions reports the number of open patient sessions.
func (tp *TelemetryProvider) SetActiveSessions(n int) {
	if tp.cfg.MetricsDisabled {
		return
	}
	tp.activeSessions.Set(float64(n))
}

// MetricsMiddleware records request counts and latency per route pattern.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tp.cfg.MetricsDisabled {
				return next(c)
			}

			tp.httpInFlight.Inc()
			start := time.Now()

			err := next(c)

			tp.httpInFlight.Dec()
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			// Route patterns keep label cardinality bounded.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			tp.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			tp.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	h := promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{Registry: tp.registry})
	return echo.WrapHandler(h)
}

// Handler is PrometheusHandler as a plain http.Handler.
func (tp *TelemetryProvider) Handler() http.Handler {
	return promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{})
}
