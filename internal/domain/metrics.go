package domain

import "time"

// Metrics is a derived aggregate over the conflict ledger. It owns no source
// of truth of its own and can always be rebuilt from a full ledger scan.
type Metrics struct {
	TotalDetected int64 `json:"total_detected"`
	TotalResolved int64 `json:"total_resolved"`
	TotalFailed   int64 `json:"total_failed"`
	Unresolved    int64 `json:"unresolved"`

	ByType     map[ConflictType]int64       `json:"by_type"`
	ByTable    map[string]int64             `json:"by_table"`
	ByStrategy map[ResolutionStrategy]int64 `json:"by_strategy"`

	AvgResolutionTime time.Duration `json:"avg_resolution_time_ns"`

	LastDetectedAt *time.Time `json:"last_detected_at,omitempty"`
	LastResolvedAt *time.Time `json:"last_resolved_at,omitempty"`
}
