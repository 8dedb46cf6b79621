package service

import (
	"sync"
	"time"

	"reconciler-server/internal/domain"
)

// MetricsAggregator keeps additive counters over the conflict ledger. It has
// no durability of its own: Rebuild reconstructs the whole aggregate from a
// full ledger scan at startup.
type MetricsAggregator struct {
	mu sync.Mutex

	metrics       domain.Metrics
	totalResolved int64
	totalDuration time.Duration
}

func NewMetricsAggregator() *MetricsAggregator {
	return &MetricsAggregator{metrics: emptyMetrics()}
}

func emptyMetrics() domain.Metrics {
	return domain.Metrics{
		ByType:     make(map[domain.ConflictType]int64),
		ByTable:    make(map[string]int64),
		ByStrategy: make(map[domain.ResolutionStrategy]int64),
	}
}

func (a *MetricsAggregator) RecordDetected(c *domain.Conflict) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.TotalDetected++
	a.metrics.Unresolved++
	a.metrics.ByType[c.Type]++
	a.metrics.ByTable[c.Table]++

	t := c.DetectedAt
	a.metrics.LastDetectedAt = &t
}

func (a *MetricsAggregator) RecordResolved(c *domain.Conflict, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.TotalResolved++
	if a.metrics.Unresolved > 0 {
		a.metrics.Unresolved--
	}
	if c.Resolution != nil {
		a.metrics.ByStrategy[c.Resolution.Strategy]++
	}

	a.totalResolved++
	a.totalDuration += latency
	a.metrics.AvgResolutionTime = a.totalDuration / time.Duration(a.totalResolved)

	now := time.Now().UTC()
	if c.ResolvedAt != nil {
		now = *c.ResolvedAt
	}
	a.metrics.LastResolvedAt = &now
}

func (a *MetricsAggregator) RecordFailed(c *domain.Conflict) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.TotalFailed++
}

// Snapshot returns a copy safe for the caller to hold.
func (a *MetricsAggregator) Snapshot() domain.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.metrics
	out.ByType = make(map[domain.ConflictType]int64, len(a.metrics.ByType))
	for k, v := range a.metrics.ByType {
		out.ByType[k] = v
	}
	out.ByTable = make(map[string]int64, len(a.metrics.ByTable))
	for k, v := range a.metrics.ByTable {
		out.ByTable[k] = v
	}
	out.ByStrategy = make(map[domain.ResolutionStrategy]int64, len(a.metrics.ByStrategy))
	for k, v := range a.metrics.ByStrategy {
		out.ByStrategy[k] = v
	}
	return out
}

// Rebuild recomputes every counter from a full ledger scan, replacing the
// current aggregate.
func (a *MetricsAggregator) Rebuild(conflicts []*domain.Conflict) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics = emptyMetrics()
	a.totalResolved = 0
	a.totalDuration = 0

	for _, c := range conflicts {
		a.metrics.TotalDetected++
		a.metrics.ByType[c.Type]++
		a.metrics.ByTable[c.Table]++

		if a.metrics.LastDetectedAt == nil || c.DetectedAt.After(*a.metrics.LastDetectedAt) {
			t := c.DetectedAt
			a.metrics.LastDetectedAt = &t
		}

		switch c.Status {
		case domain.StatusResolved:
			a.metrics.TotalResolved++
			if c.Resolution != nil {
				a.metrics.ByStrategy[c.Resolution.Strategy]++
			}
			if c.ResolvedAt != nil {
				a.totalResolved++
				a.totalDuration += c.ResolvedAt.Sub(c.DetectedAt)
				if a.metrics.LastResolvedAt == nil || c.ResolvedAt.After(*a.metrics.LastResolvedAt) {
					t := *c.ResolvedAt
					a.metrics.LastResolvedAt = &t
				}
			}
		case domain.StatusFailed:
			a.metrics.TotalFailed++
			a.metrics.Unresolved++
		default:
			a.metrics.Unresolved++
		}
	}

	if a.totalResolved > 0 {
		a.metrics.AvgResolutionTime = a.totalDuration / time.Duration(a.totalResolved)
	}
}
