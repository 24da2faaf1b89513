package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveClassification(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.ObserveClassification("classified", "recyclable", 2, 30*time.Millisecond)
	m.ObserveClassification("classified", "recyclable", 1, 10*time.Millisecond)
	m.ObserveClassification("no_detections", "general_waste", 0, 5*time.Millisecond)
	m.CacheHit()

	if got := testutil.ToFloat64(m.classifications.WithLabelValues("classified", "recyclable")); got != 2 {
		t.Fatalf("expected 2 recyclable classifications, got %v", got)
	}
	if got := testutil.ToFloat64(m.classifications.WithLabelValues("no_detections", "general_waste")); got != 1 {
		t.Fatalf("expected 1 empty classification, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheHits); got != 1 {
		t.Fatalf("expected 1 cache hit, got %v", got)
	}
	if got := testutil.CollectAndCount(m.latency); got != 1 {
		t.Fatalf("expected latency histogram to be collected, got %d", got)
	}
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveClassification("classified", "recyclable", 1, time.Millisecond)
	m.CacheHit()
}
