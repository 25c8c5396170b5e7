package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestAssetMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewAssetMetrics(reg)
	metrics.ObserveUpload("model", 2048, 250*time.Millisecond)
	metrics.IncUploadFailure("thumbnail")
	metrics.IncThumbnailSkipped()
	metrics.ObserveCacheLookup(true)
	metrics.ObserveCacheLookup(false)
	metrics.ObserveCacheLookup(false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "asset_upload_bytes_total", "stage", "model"); err != nil {
		t.Fatalf("fetch bytes: %v", err)
	} else if got != 2048 {
		t.Fatalf("expected bytes=2048, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "asset_upload_failures_total", "stage", "thumbnail"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "asset_upload_duration_seconds", "stage", "model"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "asset_cache_lookups_total", "result", CacheMiss); err != nil {
		t.Fatalf("fetch cache misses: %v", err)
	} else if got != 2 {
		t.Fatalf("expected misses=2, got %f", got)
	}

	mf := findMetricFamily(mfs, "asset_thumbnail_skipped_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected thumbnail skipped counter of 1")
	}
}

func TestRepositoryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewRepositoryMetrics(reg)
	metrics.ObserveWrite("save", nil)
	metrics.ObserveWrite("save", errors.New("unavailable"))
	metrics.SubscriptionStarted(SubscriptionItem)
	metrics.SubscriptionStarted(SubscriptionItem)
	metrics.SubscriptionStopped(SubscriptionItem)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "item_writes_total", "result", ResultError); err != nil {
		t.Fatalf("fetch writes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected error writes=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "item_subscriptions_active")
	if mf == nil {
		t.Fatalf("subscription gauge missing")
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected one active item subscription, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewAssetMetrics(nil).ObserveUpload("model", 1, time.Second)
	NewRepositoryMetrics(nil).ObserveWrite("save", nil)
	var m *AssetMetrics
	m.IncThumbnailSkipped()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
