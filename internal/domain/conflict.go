package domain

import "time"

type ConflictType string

const (
	ConflictTypeDataMismatch        ConflictType = "data_mismatch"
	ConflictTypeTimestamp           ConflictType = "timestamp_conflict"
	ConflictTypeDeletion            ConflictType = "deletion_conflict"
	ConflictTypeConstraintViolation ConflictType = "constraint_violation"
)

type ConflictStatus string

const (
	StatusDetected  ConflictStatus = "detected"
	StatusResolving ConflictStatus = "resolving"
	StatusResolved  ConflictStatus = "resolved"
	StatusFailed    ConflictStatus = "failed"
)

// ExistenceField is the sentinel conflict field for deletion conflicts,
// where one store has the record and the other does not.
const ExistenceField = "existence"

type ResolutionStrategy string

const (
	StrategyPrimaryWins   ResolutionStrategy = "primary_wins"
	StrategySecondaryWins ResolutionStrategy = "secondary_wins"
	StrategyTimestampWins ResolutionStrategy = "timestamp_wins"
	StrategyMerge         ResolutionStrategy = "merge"
	StrategyManual        ResolutionStrategy = "manual"
)

// Record is one store's view of a row/document: field name to value.
type Record map[string]any

// Conflict is the unit of work. Immutable once stored except for
// Status/Resolution/ResolvedAt, which advance through the lifecycle
// detected -> resolving -> resolved|failed.
type Conflict struct {
	ID             string         `json:"id"`
	Table          string         `json:"table"`
	RecordID       string         `json:"record_id"`
	Type           ConflictType   `json:"conflict_type"`
	PrimaryData    Record         `json:"primary_data"`
	SecondaryData  Record         `json:"secondary_data"`
	ConflictFields []string       `json:"conflict_fields"`
	DetectedAt     time.Time      `json:"detected_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	Resolution     *Resolution    `json:"resolution,omitempty"`
	Status         ConflictStatus `json:"status"`
}

// Open reports whether the conflict still counts against the per-record
// uniqueness invariant.
func (c *Conflict) Open() bool {
	return c.Status == StatusDetected || c.Status == StatusResolving
}

// Resolution records how a conflict was (or is being) settled. Winner is
// materialized at resolution time for the side-picking strategies so a
// crash-retry re-applies the identical write instead of re-deriving it.
type Resolution struct {
	Strategy     ResolutionStrategy `json:"strategy"`
	Winner       string             `json:"winner,omitempty"`
	ResolvedData Record             `json:"resolved_data,omitempty"`
	ResolvedBy   string             `json:"resolved_by"`
	Notes        string             `json:"notes,omitempty"`
	AppliedAt    time.Time          `json:"applied_at"`
}

type DetectRequest struct {
	Table    string `json:"table" validate:"required"`
	RecordID string `json:"record_id" validate:"required"`
}

type ResolveConflictRequest struct {
	Strategy     ResolutionStrategy `json:"strategy" validate:"required,oneof=primary_wins secondary_wins timestamp_wins merge manual"`
	ResolvedData Record             `json:"resolved_data,omitempty"`
	ResolvedBy   string             `json:"resolved_by" validate:"required"`
	Notes        string             `json:"notes,omitempty"`
}
