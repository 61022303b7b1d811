// Package metricsvc exposes application events as Prometheus metrics.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/sapp/core"
)

// Recorder owns its registry so that tests and multiple servers do not share counters.
type Recorder struct {
	reg *prometheus.Registry

	logins    *prometheus.CounterVec
	selfHeals *prometheus.CounterVec
	adminOps  *prometheus.CounterVec
	requests  *prometheus.HistogramVec
}

var _ core.Recorder = (*Recorder)(nil)

func NewRecorder(namespace string) *Recorder {
	rec := &Recorder{
		reg: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Total number of login attempts by result.",
			},
			[]string{"result"},
		),
		selfHeals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_self_heals_total",
				Help:      "Total number of missing profile repairs by outcome.",
			},
			[]string{"outcome"},
		),
		adminOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_operations_total",
				Help:      "Total number of privileged operations by operation and error kind.",
			},
			[]string{"op", "kind"},
		),
		requests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests by method, route and status code.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "code"},
		),
	}
	rec.reg.MustRegister(
		rec.logins, rec.selfHeals, rec.adminOps, rec.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return rec
}

func (rec *Recorder) Login(result string) {
	rec.logins.WithLabelValues(result).Inc()
}

func (rec *Recorder) SelfHeal(outcome string) {
	rec.selfHeals.WithLabelValues(outcome).Inc()
}

func (rec *Recorder) AdminOp(op string, kind core.Kind) {
	k := string(kind)
	if k == "" {
		k = "ok"
	}
	rec.adminOps.WithLabelValues(op, k).Inc()
}

func (rec *Recorder) ObserveRequest(method, route string, code int, d time.Duration) {
	rec.requests.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}

func (rec *Recorder) Registry() *prometheus.Registry { return rec.reg }

func (rec *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(rec.reg, promhttp.HandlerOpts{Registry: rec.reg})
}
