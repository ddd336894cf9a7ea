package build

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors updated after every build.
type Metrics struct {
	builds             *prometheus.CounterVec
	buildDuration      prometheus.Histogram
	documents          prometheus.Counter
	copied             prometheus.Counter
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	failedResolutions  prometheus.Counter
	documentErrors     prometheus.Counter
	components         prometheus.Gauge
	droppedBuildEvents prometheus.Counter

	snapshot BuildMetrics
	mutex    sync.RWMutex
}

// BuildMetrics is an in-process summary of build activity.
type BuildMetrics struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	DroppedBuilds    int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
}

// NewMetrics registers the build collectors with registry. A nil registry
// uses a private one, which keeps repeated construction in tests safe.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "builds_total",
			Help:      "Total number of builds by result",
		}, []string{"kind", "result"}),
		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weave",
			Name:      "build_duration_seconds",
			Help:      "Full build duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		documents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "documents_processed_total",
			Help:      "Total number of documents expanded",
		}),
		copied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "files_copied_total",
			Help:      "Total number of files copied through unchanged",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "expansion_cache_hits_total",
			Help:      "Total number of expansion cache hits",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "expansion_cache_misses_total",
			Help:      "Total number of expansion cache misses",
		}),
		failedResolutions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "failed_resolutions_total",
			Help:      "Total number of component tags that referenced a missing component",
		}),
		documentErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "document_errors_total",
			Help:      "Total number of documents that failed to process",
		}),
		components: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "weave",
			Name:      "components_loaded",
			Help:      "Number of components in the store",
		}),
		droppedBuildEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weave",
			Name:      "builds_dropped_total",
			Help:      "Build requests dropped because a build was in progress",
		}),
	}
}

// RecordBuild records a completed full build.
func (m *Metrics) RecordBuild(result *BuildResult, components int) {
	status := "success"
	if len(result.Errors) > 0 {
		status = "failed"
	}
	m.builds.WithLabelValues("full", status).Inc()
	m.buildDuration.Observe(result.Duration.Seconds())
	m.documents.Add(float64(result.Documents))
	m.copied.Add(float64(result.Copied))
	m.cacheHits.Add(float64(result.CacheHits))
	m.cacheMisses.Add(float64(result.CacheMisses))
	m.failedResolutions.Add(float64(result.FailedResolutions))
	m.documentErrors.Add(float64(len(result.Errors)))
	m.components.Set(float64(components))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.snapshot.TotalBuilds++
	m.snapshot.TotalDuration += result.Duration
	if status == "success" {
		m.snapshot.SuccessfulBuilds++
	} else {
		m.snapshot.FailedBuilds++
	}
	m.snapshot.AverageDuration = m.snapshot.TotalDuration / time.Duration(m.snapshot.TotalBuilds)
}

// RecordRebuild records a single-file rebuild.
func (m *Metrics) RecordRebuild(document bool, err error) {
	status := "success"
	if err != nil {
		status = "failed"
		m.documentErrors.Inc()
	}
	m.builds.WithLabelValues("file", status).Inc()
	if err == nil {
		if document {
			m.documents.Inc()
		} else {
			m.copied.Inc()
		}
	}
}

// RecordDropped records a build request dropped by the in-flight guard.
func (m *Metrics) RecordDropped() {
	m.droppedBuildEvents.Inc()

	m.mutex.Lock()
	m.snapshot.DroppedBuilds++
	m.mutex.Unlock()
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() BuildMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.snapshot
}

// GetSuccessRate returns the success rate of full builds as a percentage
func (m *Metrics) GetSuccessRate() float64 {
	snap := m.GetSnapshot()
	if snap.TotalBuilds == 0 {
		return 0.0
	}

	return float64(snap.SuccessfulBuilds) / float64(snap.TotalBuilds) * 100.0
}
