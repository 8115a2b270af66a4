package stringbot

import (
	"sync"
	"testing"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := newMetrics()

	m.Inc(MetricFlowStarted)
	m.Inc(MetricFlowStarted)
	m.Inc(MetricSessionStored)

	snap := m.Snapshot()
	if snap.Counters[MetricFlowStarted] != 2 {
		t.Fatalf("expected 2 flow starts, got %d", snap.Counters[MetricFlowStarted])
	}
	if snap.Counters[MetricSessionStored] != 1 {
		t.Fatalf("expected 1 stored session, got %d", snap.Counters[MetricSessionStored])
	}
	if snap.Counters[MetricRateLimitHit] != 0 {
		t.Fatalf("untouched counter must be zero")
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := newMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricFlowCompleted)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricFlowCompleted]; got != 16000 {
		t.Fatalf("expected 16000, got %d", got)
	}
}

func TestMetricIDNames(t *testing.T) {
	seen := make(map[string]MetricID)
	for id := MetricID(0); id < metricCount; id++ {
		name := id.Name()
		if name == "" || name == "unknown" {
			t.Fatalf("metric %d has no name", id)
		}
		if prev, dup := seen[name]; dup {
			t.Fatalf("metrics %d and %d share name %q", prev, id, name)
		}
		seen[name] = id
	}
	if metricCount.Name() != "unknown" {
		t.Fatalf("out-of-range id must name itself unknown, got %q", metricCount.Name())
	}
}

func TestMetricsOutOfRangeIncIsIgnored(t *testing.T) {
	m := newMetrics()
	m.Inc(metricCount)
	m.Inc(MetricID(10_000))

	snap := m.Snapshot()
	for id, v := range snap.Counters {
		if v != 0 {
			t.Fatalf("counter %v unexpectedly nonzero", id)
		}
	}
}
