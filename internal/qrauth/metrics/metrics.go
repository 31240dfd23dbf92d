// Package metrics exposes the QR handshake to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qrauth"

// Operation outcomes used as the "result" label.
const (
	ResultOK                   = "ok"
	ResultNotFound             = "not_found"
	ResultExpired              = "expired"
	ResultAlreadyAuthenticated = "already_authenticated"
	ResultNotAuthenticated     = "not_authenticated"
	ResultRejected             = "rejected"
	ResultError                = "error"
)

// Recorder owns a private registry so tests and multiple app instances never
// collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	created      prometheus.Counter
	operations   *prometheus.CounterVec
	swept        prometheus.Counter
	approvalWait prometheus.Histogram
	watchers     prometheus.Gauge
}

// New registers the handshake collectors plus the Go runtime and process
// collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "QR sessions created.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Handshake operations by operation and result.",
		}, []string{"operation", "result"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired QR sessions removed by the sweeper.",
		}),
		approvalWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "approval_wait_seconds",
			Help:      "Time between creating a QR session and its approval.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		watchers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchers",
			Help:      "Open websocket status watchers.",
		}),
	}

	r.registry.MustRegister(
		r.created, r.operations, r.swept, r.approvalWait, r.watchers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry is exposed for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// TrackStoreSize publishes the number of stored sessions, sampled on scrape.
func (r *Recorder) TrackStoreSize(count func(context.Context) (int, error)) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_stored",
		Help:      "QR sessions currently held by the store, expired ones included.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := count(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	}))
}

func (r *Recorder) SessionCreated() { r.created.Inc() }

func (r *Recorder) SessionApproved(wait time.Duration) {
	r.approvalWait.Observe(wait.Seconds())
}

func (r *Recorder) Operation(op, result string) {
	r.operations.WithLabelValues(op, result).Inc()
}

func (r *Recorder) SessionsSwept(n int) {
	if n > 0 {
		r.swept.Add(float64(n))
	}
}

func (r *Recorder) WatcherOpened() { r.watchers.Inc() }
func (r *Recorder) WatcherClosed() { r.watchers.Dec() }
