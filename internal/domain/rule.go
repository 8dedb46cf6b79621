package domain

type ConditionOperator string

const (
	OpEquals    ConditionOperator = "eq"
	OpNotEquals ConditionOperator = "ne"
	OpGreater   ConditionOperator = "gt"
	OpLess      ConditionOperator = "lt"
	OpExists    ConditionOperator = "exists"
	OpNotEmpty  ConditionOperator = "not_empty"
)

// RuleCondition is a single field-level check evaluated against the merged
// view of a record during classification. A failing condition on an enabled
// rule produces a constraint_violation conflict.
type RuleCondition struct {
	Field    string            `json:"field" validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required,oneof=eq ne gt lt exists not_empty"`
	Value    any               `json:"value,omitempty"`
}

// DetectionRule governs classification and default resolution for one table.
// Rules are administrator-owned and read-only to the engine at detection time.
type DetectionRule struct {
	ID              string             `json:"id"`
	Table           string             `json:"table" validate:"required"`
	Conditions      []RuleCondition    `json:"conditions" validate:"dive"`
	DefaultStrategy ResolutionStrategy `json:"default_strategy" validate:"required,oneof=primary_wins secondary_wins timestamp_wins merge manual"`
	Enabled         bool               `json:"enabled"`
}
