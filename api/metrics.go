// Package api exposes a running ledger engine to operators: Prometheus
// metrics over HTTP and the standard gRPC health service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// PoolObserver is the part of engine.WorkerPool the metrics read.
type PoolObserver interface {
	GetStats() engine.PoolStats
	State() engine.PoolState
}

// QueueObserver is the part of engine.Queue the metrics read.
type QueueObserver interface {
	Stats() engine.QueueStats
}

// Metrics holds all Prometheus metrics for the engine. It implements
// engine.Recorder so it can sit next to the console recorder.
type Metrics struct {
	// Entry metrics
	EntriesTotal *prometheus.CounterVec
	EntryLatency *prometheus.HistogramVec
	Rejected     prometheus.Counter

	// Queue metrics
	QueueDepth    prometheus.Gauge
	QueueCapacity prometheus.Gauge

	// Worker pool metrics
	WorkersActive prometheus.Gauge
	Dispatched    prometheus.Gauge
	PoolState     prometheus.Gauge
}

// NewMetrics creates metrics under namespace and registers them with reg.
// Passing a fresh prometheus.NewRegistry keeps tests independent.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EntriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Ledger entries applied, by operation and status",
		}, []string{"op", "status"}),
		EntryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entry_latency_seconds",
			Help:      "Time spent applying one entry, including lock waits",
			Buckets:   []float64{.00001, .0001, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_rejected_total",
			Help:      "Entries rejected by workers before reaching the account store",
		}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of entries waiting in the work queue",
		}),
		QueueCapacity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_capacity",
			Help:      "Capacity of the work queue",
		}),

		WorkersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_active",
			Help:      "Number of workers currently applying an entry",
		}),
		Dispatched: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_dispatched",
			Help:      "Entries taken from the source so far",
		}),
		PoolState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_state",
			Help:      "Pool lifecycle state: 0 not started, 1 running, 2 draining, 3 joined",
		}),
	}
}

// Record implements engine.Recorder.
func (m *Metrics) Record(o engine.Outcome) {
	status := "succeeded"
	if !o.Succeeded() {
		status = "failed"
	}
	m.EntriesTotal.WithLabelValues(o.Op.String(), status).Inc()
	m.EntryLatency.WithLabelValues(o.Op.String()).Observe(o.Duration.Seconds())
	if o.Stage == engine.StageDispatch {
		m.Rejected.Inc()
	}
}

// UpdateQueue updates the queue gauges.
func (m *Metrics) UpdateQueue(stats engine.QueueStats) {
	m.QueueDepth.Set(float64(stats.Size))
	m.QueueCapacity.Set(float64(stats.Capacity))
}

// UpdatePool updates worker pool gauges.
func (m *Metrics) UpdatePool(stats engine.PoolStats, state engine.PoolState) {
	m.WorkersActive.Set(float64(stats.Active))
	m.Dispatched.Set(float64(stats.Dispatched))
	m.PoolState.Set(float64(state))
}

// Watch samples the queue and pool every interval until ctx is done or the
// pool joins. A nil queue is skipped.
func (m *Metrics) Watch(ctx context.Context, interval time.Duration, q QueueObserver, pool PoolObserver) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if q != nil {
			m.UpdateQueue(q.Stats())
		}
		state := pool.State()
		m.UpdatePool(pool.GetStats(), state)
		if state == engine.PoolJoined {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// MetricsServer runs an HTTP server exposing /metrics and /health.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics server on addr serving gatherer. healthy
// may be nil, in which case /health always answers OK.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, healthy func() bool) *MetricsServer {
	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewMetricsHandler(gatherer, healthy),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// NewMetricsHandler builds the /metrics and /health mux.
func NewMetricsHandler(gatherer prometheus.Gatherer, healthy func() bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT SERVING"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Start starts the metrics server (blocking). It returns nil after Stop.
func (s *MetricsServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
