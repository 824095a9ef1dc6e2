package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cohortline/exportd/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:         true,
		Namespace:       "test",
		Subsystem:       "exportd",
		DurationBuckets: []float64{1, 10, 100},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_RecordExport(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordExport("DEFAULT", "success", 2*time.Second)
	collector.RecordExport("DEFAULT", "success", 3*time.Second)
	collector.RecordExport("USER", "error", time.Second)

	got := testutil.ToFloat64(collector.exportMetrics.exportsTotal.WithLabelValues("DEFAULT", "success"))
	if got != 2 {
		t.Errorf("exports_total{DEFAULT,success} = %v, want 2", got)
	}
	got = testutil.ToFloat64(collector.exportMetrics.exportsTotal.WithLabelValues("USER", "error"))
	if got != 1 {
		t.Errorf("exports_total{USER,error} = %v, want 1", got)
	}
}

func TestCollector_RecordRecords(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordRecords("Weight", 3)
	collector.RecordRecords("Weight", 2)
	collector.RecordRecords("Height", 0)

	if got := testutil.ToFloat64(collector.exportMetrics.recordsExported.WithLabelValues("Weight")); got != 5 {
		t.Errorf("records_exported_total{Weight} = %v, want 5", got)
	}
	if got := testutil.CollectAndCount(collector.exportMetrics.recordsExported); got != 1 {
		t.Errorf("zero counts should not create series, got %d series", got)
	}
}

func TestCollector_ResolutionAndJobs(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordBinaryResolution("SIGNED_URL", "resolved")
	collector.RecordBinaryResolution("BINARY", "missing")
	collector.RecordRevisionLookup("found")
	collector.RecordAmbiguousVersion()
	collector.RecordStuckProcesses(2)
	collector.RecordPrunedArtifacts(4)

	if got := testutil.ToFloat64(collector.resolutionMetrics.binaryResolutions.WithLabelValues("BINARY", "missing")); got != 1 {
		t.Errorf("binary_resolutions_total{BINARY,missing} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.resolutionMetrics.ambiguousVersions); got != 1 {
		t.Errorf("ambiguous_versions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.jobMetrics.stuckProcesses); got != 2 {
		t.Errorf("stuck_processes_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.jobMetrics.prunedArtifacts); got != 4 {
		t.Errorf("pruned_artifacts_total = %v, want 4", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, nil)

	collector.RecordExport("DEFAULT", "success", time.Second)

	if got := testutil.CollectAndCount(collector.exportMetrics.exportsTotal); got != 0 {
		t.Errorf("disabled collector recorded %d series", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var collector *Collector
	collector.RecordExport("DEFAULT", "success", time.Second)
	collector.RecordRecords("Weight", 1)
	collector.RecordAmbiguousVersion()
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(2)

	if !limiter.Allow("a") || !limiter.Allow("b") {
		t.Fatal("first two label sets should be allowed")
	}
	if !limiter.Allow("a") {
		t.Error("existing label set should stay allowed")
	}
	if limiter.Allow("c") {
		t.Error("third label set should be rejected")
	}
	if limiter.Count() != 2 {
		t.Errorf("Count() = %d, want 2", limiter.Count())
	}
}

func TestCollector_CategoryOverflow(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.cardinalityLimiter = NewCardinalityLimiter(1)

	collector.RecordRecords("Weight", 1)
	collector.RecordRecords("Height", 1)

	if got := testutil.ToFloat64(collector.exportMetrics.recordsExported.WithLabelValues("other")); got != 1 {
		t.Errorf("overflow category should be recorded as other, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RecordExport("DEFAULT", "success", time.Second)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := fmt.Sprintf("%s_%s_exports_total", "test", "exportd")
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("response missing %s", want)
	}
}
