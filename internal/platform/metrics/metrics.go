package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledgerWrites    *prometheus.CounterVec
	ledgerFailures  *prometheus.CounterVec
	alertsRaised    *prometheus.CounterVec
	alertsSkipped   *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailpay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "detailpay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailpay",
			Subsystem: "payroll",
			Name:      "ledger_writes_total",
			Help:      "History entries written, by entry type and status.",
		}, []string{"type", "status"}),
		ledgerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailpay",
			Subsystem: "payroll",
			Name:      "ledger_step_failures_total",
			Help:      "Ledger side-effect steps that failed after the entry was committed.",
		}, []string{"step"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailpay",
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Alerts created, by type.",
		}, []string{"type"}),
		alertsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailpay",
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Alerts suppressed by de-duplication, by type.",
		}, []string{"type"}),
	}
	c.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		c.requestsTotal,
		c.requestDuration,
		c.ledgerWrites,
		c.ledgerFailures,
		c.alertsRaised,
		c.alertsSkipped,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) LedgerWrite(entryType, status string) {
	c.ledgerWrites.WithLabelValues(entryType, status).Inc()
}

func (c *Collector) LedgerStepFailed(step string) {
	c.ledgerFailures.WithLabelValues(step).Inc()
}

func (c *Collector) AlertRaised(alertType string) {
	c.alertsRaised.WithLabelValues(alertType).Inc()
}

func (c *Collector) AlertSuppressed(alertType string) {
	c.alertsSkipped.WithLabelValues(alertType).Inc()
}
