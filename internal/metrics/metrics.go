// Package metrics wraps a Prometheus registry around the engine's
// observability surface: decode outcomes, sync-state transitions,
// live-buffer occupancy, and fatal errors. Out of band with respect
// to the wire contract itself, but carried as ambient infrastructure
// the way prometheus/client_golang gets wired through a small
// named-metric struct elsewhere in this codebase (LXMetrics).
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a dedicated prometheus.Registry (never the global
// default registerer, so multiple instances of this engine never
// collide) with the gauges/counters/histogram this engine reports.
type Registry struct {
	namespace string
	reg       *prometheus.Registry
	logger    log.Logger

	decoded        *prometheus.CounterVec
	discarded      *prometheus.CounterVec
	fatal          *prometheus.CounterVec
	syncState      prometheus.Gauge
	liveBufferDepth prometheus.Gauge
	processLatency *prometheus.HistogramVec

	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
}

// stateValue maps syncctl.State.String() to a numeric gauge value so
// state transitions are visible on a single time series: 0=INIT,
// 1=CATCHING_UP, 2=LIVE.
var stateValue = map[string]float64{
	"INIT":        0,
	"CATCHING_UP": 1,
	"LIVE":        2,
}

// New creates a Registry under namespace, registering every metric
// eagerly (mirroring NewLXMetrics: all collectors built and
// MustRegister'd up front, not lazily on first use).
func New(namespace string, logger log.Logger) *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		namespace: namespace,
		reg:       reg,
		logger:    logger,

		decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_decoded_total",
			Help:      "Total datagrams successfully decoded, by message kind.",
		}, []string{"kind"}),

		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_discarded_total",
			Help:      "Total datagrams discarded (benign), by reason.",
		}, []string{"reason"}),

		fatal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fatal_errors_total",
			Help:      "Total fatal protocol violations observed, by kind, before process termination.",
		}, []string{"kind"}),

		syncState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_state",
			Help:      "Current sync controller state: 0=INIT, 1=CATCHING_UP, 2=LIVE.",
		}),

		liveBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_buffer_depth",
			Help:      "Number of datagrams currently buffered from the live channel during catch-up.",
		}),

		processLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "datagram_process_latency_seconds",
			Help:      "Time to decode and apply a single datagram, by channel.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"channel"}),

		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Current process memory usage in bytes.",
		}),

		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_count",
			Help:      "Current number of goroutines.",
		}),
	}

	reg.MustRegister(
		m.decoded,
		m.discarded,
		m.fatal,
		m.syncState,
		m.liveBufferDepth,
		m.processLatency,
		m.memoryUsage,
		m.goroutines,
	)

	return m
}

// ObserveState records the sync controller's current state.
func (m *Registry) ObserveState(state string) {
	if v, ok := stateValue[state]; ok {
		m.syncState.Set(v)
	}
}

// IncDecoded increments the decoded-datagram counter for kind.
func (m *Registry) IncDecoded(kind string) { m.decoded.WithLabelValues(kind).Inc() }

// IncDiscarded increments the discarded-datagram counter for reason.
func (m *Registry) IncDiscarded(reason string) { m.discarded.WithLabelValues(reason).Inc() }

// IncFatal increments the fatal-error counter for kind. The caller
// still owns deciding whether to terminate the process; this method
// only records the observation.
func (m *Registry) IncFatal(kind string) { m.fatal.WithLabelValues(kind).Inc() }

// SetLiveBufferDepth reports the live buffer's current occupancy.
func (m *Registry) SetLiveBufferDepth(n int) { m.liveBufferDepth.Set(float64(n)) }

// ObserveProcessLatency records how long one datagram took to decode
// and apply, labeled by the channel it arrived on.
func (m *Registry) ObserveProcessLatency(channel string, d time.Duration) {
	m.processLatency.WithLabelValues(channel).Observe(d.Seconds())
}

// Serve starts an HTTP server exposing GET /metrics in the Prometheus
// exposition format, mirroring LXMetrics.StartServer but generalized
// to accept a full address rather than a bare port so it composes
// with the wsbbo server on a different port.
func (m *Registry) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	m.logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// CollectRuntimeStats periodically samples memory and goroutine
// counts until ctx is canceled, mirroring the CollectSystemMetrics
// loop.
func (m *Registry) CollectRuntimeStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.memoryUsage.Set(float64(memStats.Alloc))
			m.goroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}
