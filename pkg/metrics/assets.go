package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// AssetMetrics records asset pipeline activity.
type AssetMetrics struct {
	uploadBytes      *prometheus.CounterVec
	uploadDuration   *prometheus.HistogramVec
	uploadFailures   *prometheus.CounterVec
	thumbnailSkipped prometheus.Counter
	cacheLookups     *prometheus.CounterVec
}

// NewAssetMetrics registers the asset metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewAssetMetrics(reg prometheus.Registerer) *AssetMetrics {
	if reg == nil {
		return &AssetMetrics{}
	}
	m := &AssetMetrics{
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_upload_bytes_total",
			Help: "Bytes uploaded to the blob store.",
		}, []string{"stage"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asset_upload_duration_seconds",
			Help:    "Duration of blob uploads in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		uploadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_upload_failures_total",
			Help: "Failed blob uploads.",
		}, []string{"stage"}),
		thumbnailSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asset_thumbnail_skipped_total",
			Help: "Model uploads that finished without a thumbnail.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_cache_lookups_total",
			Help: "Local model cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.uploadBytes, m.uploadDuration, m.uploadFailures, m.thumbnailSkipped, m.cacheLookups)
	return m
}

// ObserveUpload records a finished upload for the given stage.
func (m *AssetMetrics) ObserveUpload(stage string, bytes int, duration time.Duration) {
	if m == nil || m.uploadBytes == nil {
		return
	}
	stage = normalizeLabel(stage)
	m.uploadBytes.WithLabelValues(stage).Add(float64(bytes))
	m.uploadDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *AssetMetrics) IncUploadFailure(stage string) {
	if m == nil || m.uploadFailures == nil {
		return
	}
	m.uploadFailures.WithLabelValues(normalizeLabel(stage)).Inc()
}

func (m *AssetMetrics) IncThumbnailSkipped() {
	if m == nil || m.thumbnailSkipped == nil {
		return
	}
	m.thumbnailSkipped.Inc()
}

// ObserveCacheLookup counts a cache hit or miss.
func (m *AssetMetrics) ObserveCacheLookup(hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
