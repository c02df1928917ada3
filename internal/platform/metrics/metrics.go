// Package metrics exposes the server's Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/woundcare/woundcare/internal/platform/apperr"
)

// Collector owns a registry and the metrics registered on it.
type Collector struct {
	namespace string
	registry  *prometheus.Registry
	factory   promauto.Factory

	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	InFlightGauge     prometheus.Gauge
	PermissionDenials *prometheus.CounterVec
	AIFlowRequests    *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Collector{
		namespace: namespace,
		registry:  reg,
		factory:   f,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		PermissionDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_denials_total",
			Help:      "Document store operations denied by the access rules.",
		}, []string{"operation"}),

		AIFlowRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_flow_requests_total",
			Help:      "AI flow runs by flow and outcome.",
		}, []string{"flow", "outcome"}),
	}
}

// ObserveFlow implements genai.Observer.
func (c *Collector) ObserveFlow(flow, outcome string) {
	c.AIFlowRequests.WithLabelValues(flow, outcome).Inc()
}

// CountDenials counts every permission error emitted on errs.
func (c *Collector) CountDenials(errs *apperr.Emitter) (off func()) {
	return errs.On(apperr.EventPermissionError, func(pe *apperr.PermissionError) {
		c.PermissionDenials.WithLabelValues(string(pe.Operation)).Inc()
	})
}

// WatchListeners exposes the number of open store listeners.
func (c *Collector) WatchListeners(count func() int) {
	c.gaugeFunc("live_listeners", "Open document store snapshot listeners.", count)
}

// WatchClients exposes the number of connected WebSocket clients.
func (c *Collector) WatchClients(count func() int) {
	c.gaugeFunc("websocket_clients", "Connected WebSocket clients.", count)
}

// WatchDBConnections exposes the number of open database connections.
func (c *Collector) WatchDBConnections(count func() int) {
	c.gaugeFunc("db_open_connections", "Current number of open database connections.", count)
}

func (c *Collector) gaugeFunc(name, help string, count func() int) {
	c.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(count()) })
}

// Middleware records request counts and latencies by route template.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			c.InFlightGauge.Inc()
			defer c.InFlightGauge.Dec()

			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			var he *echo.HTTPError
			if err != nil && errors.As(err, &he) {
				status = he.Code
			} else if err != nil && !ctx.Response().Committed {
				status = http.StatusInternalServerError
			}
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			labels := []string{ctx.Request().Method, path, strconv.Itoa(status)}
			c.RequestsTotal.WithLabelValues(labels...).Inc()
			c.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
