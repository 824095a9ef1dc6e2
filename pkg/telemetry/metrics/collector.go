package metrics

import (
	"fmt"
	"sync"
	"time"

	"cohortline/exportd/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every exportd Prometheus metric on a private registry.
// All methods are safe on a nil *Collector, which records nothing; library
// code takes an optional collector without branching.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	exportMetrics     *ExportMetrics
	resolutionMetrics *ResolutionMetrics
	jobMetrics        *JobMetrics

	// Category names come from deployment configuration; cap them.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		exportMetrics:      NewExportMetrics(cfg, registry),
		resolutionMetrics:  NewResolutionMetrics(cfg, registry),
		jobMetrics:         NewJobMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordExport records a finished export run.
//
// Parameters:
//   - exportType: "DEFAULT", "USER" or "SUMMARY_REPORT"
//   - status: "success" or "error"
//   - duration: wall time of the run
func (c *Collector) RecordExport(exportType, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.exportMetrics.RecordExport(exportType, status, duration)
}

// RecordRecords records how many records a category contributed to an export.
func (c *Collector) RecordRecords(category string, count int) {
	if !c.enabled() || count == 0 {
		return
	}
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("records:%s", category)) {
		category = "other"
	}
	c.exportMetrics.RecordRecords(category, count)
}

// RecordBinaryResolution records one binary reference resolution.
//
// Parameters:
//   - mode: "SIGNED_URL" or "BINARY"
//   - outcome: "resolved", "missing" or "error"
func (c *Collector) RecordBinaryResolution(mode, outcome string) {
	if !c.enabled() {
		return
	}
	c.resolutionMetrics.RecordBinary(mode, outcome)
}

// RecordRevisionLookup records one historical revision query.
//
// Parameters:
//   - outcome: "found", "not_found" or "error"
func (c *Collector) RecordRevisionLookup(outcome string) {
	if !c.enabled() {
		return
	}
	c.resolutionMetrics.RecordRevisionLookup(outcome)
}

// RecordAmbiguousVersion records a version-0 lookup that matched both a
// genuine version 0 and an unversioned config.
func (c *Collector) RecordAmbiguousVersion() {
	if !c.enabled() {
		return
	}
	c.resolutionMetrics.RecordAmbiguous()
}

// RecordStuckProcesses records processes moved to ERROR by the stuck sweeper.
func (c *Collector) RecordStuckProcesses(n int) {
	if !c.enabled() || n == 0 {
		return
	}
	c.jobMetrics.RecordStuck(n)
}

// RecordPrunedArtifacts records processes deleted by the retention sweeper.
func (c *Collector) RecordPrunedArtifacts(n int) {
	if !c.enabled() || n == 0 {
		return
	}
	c.jobMetrics.RecordPruned(n)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether the label set already exists or still fits under
// the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
