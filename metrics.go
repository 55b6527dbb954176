package indexmerge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver receives one event per index merger of a run.
// Implementations must be safe for concurrent use; mergers of one plan run
// in parallel.
type MetricsObserver interface {
	// OnIndexMerge is called after each index merger finished.
	// kind is attribute, source or summary; err is nil if successful.
	OnIndexMerge(index, kind string, duration time.Duration, err error)

	// OnMergeBytes reports the uncompressed bytes a merger wrote.
	OnMergeBytes(index, kind string, bytes uint64)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnIndexMerge(string, string, time.Duration, error) {}
func (NoopMetricsObserver) OnMergeBytes(string, string, uint64)               {}

// BasicMetricsObserver provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsObserver struct {
	MergeCount      atomic.Int64
	MergeErrors     atomic.Int64
	MergeTotalNanos atomic.Int64
	BytesWritten    atomic.Uint64

	mu     sync.Mutex
	merged map[string]int
}

// OnIndexMerge implements MetricsObserver.
func (b *BasicMetricsObserver) OnIndexMerge(index, kind string, duration time.Duration, err error) {
	b.MergeCount.Add(1)
	b.MergeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MergeErrors.Add(1)
		return
	}
	b.mu.Lock()
	if b.merged == nil {
		b.merged = make(map[string]int)
	}
	b.merged[kind]++
	b.mu.Unlock()
}

// OnMergeBytes implements MetricsObserver.
func (b *BasicMetricsObserver) OnMergeBytes(_, _ string, bytes uint64) {
	b.BytesWritten.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsObserver) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		MergeCount:   b.MergeCount.Load(),
		MergeErrors:  b.MergeErrors.Load(),
		BytesWritten: b.BytesWritten.Load(),
		ByKind:       make(map[string]int),
	}
	if s.MergeCount > 0 {
		s.MergeAvgNanos = b.MergeTotalNanos.Load() / s.MergeCount
	}
	b.mu.Lock()
	for k, v := range b.merged {
		s.ByKind[k] = v
	}
	b.mu.Unlock()
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsObserver state.
type BasicMetricsStats struct {
	MergeCount    int64
	MergeErrors   int64
	MergeAvgNanos int64
	BytesWritten  uint64
	// ByKind counts successful merges per index kind.
	ByKind map[string]int
}

// PrometheusObserver exports merge metrics to Prometheus.
type PrometheusObserver struct {
	merges   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	written  *prometheus.CounterVec
	inflight prometheus.Gauge
}

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexmerge_index_merges_total",
			Help: "Index mergers completed, by index kind and status",
		}, []string{"kind", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indexmerge_index_merge_duration_seconds",
			Help:    "Duration of one index merger",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"kind"}),
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexmerge_written_bytes_total",
			Help: "Uncompressed bytes written by index mergers",
		}, []string{"kind"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexmerge_index_merges_inflight",
			Help: "Index mergers currently running",
		}),
	}
	for _, c := range []prometheus.Collector{o.merges, o.latency, o.written, o.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnIndexMerge implements MetricsObserver.
func (o *PrometheusObserver) OnIndexMerge(_, kind string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.merges.WithLabelValues(kind, status).Inc()
	o.latency.WithLabelValues(kind).Observe(d.Seconds())
}

// OnMergeBytes implements MetricsObserver.
func (o *PrometheusObserver) OnMergeBytes(_, kind string, bytes uint64) {
	o.written.WithLabelValues(kind).Add(float64(bytes))
}

func (o *PrometheusObserver) started()  { o.inflight.Inc() }
func (o *PrometheusObserver) finished() { o.inflight.Dec() }

// inflightTracker is implemented by observers that track running mergers.
type inflightTracker interface {
	started()
	finished()
}
