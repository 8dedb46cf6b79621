package service

import (
	"sort"
	"time"

	"reconciler-server/internal/domain"
	"reconciler-server/pkg/compare"

	"github.com/google/uuid"
)

// Classifier compares the two store-side snapshots of a record and produces
// zero or more conflict drafts. Drafts are not persisted here; that belongs
// to the ConflictService.
type Classifier struct {
	registry       *RuleRegistry
	timestampField string
	skewTolerance  time.Duration
}

func NewClassifier(registry *RuleRegistry, timestampField string, skewTolerance time.Duration) *Classifier {
	return &Classifier{
		registry:       registry,
		timestampField: timestampField,
		skewTolerance:  skewTolerance,
	}
}

// Classify implements the detection contract:
//
//  1. both sides absent: no conflict
//  2. exactly one side absent: a single deletion_conflict, nothing else
//  3. both present: one data_mismatch bundling every divergent field
//  4. independently, a timestamp_conflict when the modification timestamps
//     drift beyond the skew tolerance
//  5. constraint_violation when an enabled rule's conditions fail against
//     the merged view
//
// Consumers rely on a data_mismatch being field-complete: one conflict
// carrying all mismatching fields, never one conflict per field.
func (c *Classifier) Classify(table, recordID string, primary domain.Record, primaryFound bool, secondary domain.Record, secondaryFound bool) []*domain.Conflict {
	if !primaryFound && !secondaryFound {
		return nil
	}

	if primaryFound != secondaryFound {
		return []*domain.Conflict{
			c.draft(table, recordID, domain.ConflictTypeDeletion, primary, secondary, []string{domain.ExistenceField}),
		}
	}

	var conflicts []*domain.Conflict

	// The timestamp field is classified separately below; drift inside the
	// skew tolerance is not divergence.
	diff := compare.DiffFields(primary, secondary)
	diff = remove(diff, c.timestampField)
	if len(diff) > 0 {
		conflicts = append(conflicts,
			c.draft(table, recordID, domain.ConflictTypeDataMismatch, primary, secondary, diff))
	}

	primaryTS, pok := extractTimestamp(primary[c.timestampField])
	secondaryTS, sok := extractTimestamp(secondary[c.timestampField])
	if pok && sok {
		drift := primaryTS.Sub(secondaryTS)
		if drift < 0 {
			drift = -drift
		}
		if drift > c.skewTolerance {
			conflicts = append(conflicts,
				c.draft(table, recordID, domain.ConflictTypeTimestamp, primary, secondary, []string{c.timestampField}))
		}
	}

	if violated := c.violatedFields(table, primary, secondary); len(violated) > 0 {
		conflicts = append(conflicts,
			c.draft(table, recordID, domain.ConflictTypeConstraintViolation, primary, secondary, violated))
	}

	return conflicts
}

func (c *Classifier) draft(table, recordID string, conflictType domain.ConflictType, primary, secondary domain.Record, fields []string) *domain.Conflict {
	return &domain.Conflict{
		ID:             uuid.New().String(),
		Table:          table,
		RecordID:       recordID,
		Type:           conflictType,
		PrimaryData:    primary,
		SecondaryData:  secondary,
		ConflictFields: fields,
		DetectedAt:     time.Now().UTC(),
		Status:         domain.StatusDetected,
	}
}

// violatedFields evaluates every enabled rule's conditions against the
// merged view (secondary overlaid on primary) and returns the fields of the
// failing conditions.
func (c *Classifier) violatedFields(table string, primary, secondary domain.Record) []string {
	rules := c.registry.RulesFor(table)
	if len(rules) == 0 {
		return nil
	}

	merged := make(domain.Record, len(primary)+len(secondary))
	for k, v := range primary {
		merged[k] = v
	}
	for k, v := range secondary {
		merged[k] = v
	}

	seen := make(map[string]struct{})
	var violated []string
	for _, rule := range rules {
		for _, cond := range rule.Conditions {
			if evalCondition(cond, merged) {
				continue
			}
			if _, dup := seen[cond.Field]; dup {
				continue
			}
			seen[cond.Field] = struct{}{}
			violated = append(violated, cond.Field)
		}
	}

	sort.Strings(violated)
	return violated
}

func evalCondition(cond domain.RuleCondition, record domain.Record) bool {
	value, exists := record[cond.Field]

	switch cond.Operator {
	case domain.OpExists:
		return exists
	case domain.OpNotEmpty:
		return exists && value != nil && value != ""
	case domain.OpEquals:
		return exists && compare.Equal(value, cond.Value)
	case domain.OpNotEquals:
		return exists && !compare.Equal(value, cond.Value)
	case domain.OpGreater:
		a, aok := toFloat(value)
		b, bok := toFloat(cond.Value)
		return aok && bok && a > b
	case domain.OpLess:
		a, aok := toFloat(value)
		b, bok := toFloat(cond.Value)
		return aok && bok && a < b
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// extractTimestamp pulls a "last modified" value out of a record field,
// tolerating the representations the two stores produce: time.Time from the
// SQL driver, RFC3339 text from JSON documents, epoch seconds as numbers.
func extractTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case int64:
		return time.Unix(t, 0), true
	case float64:
		sec := int64(t)
		nsec := int64((t - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec), true
	default:
		return time.Time{}, false
	}
}

func remove(fields []string, name string) []string {
	out := fields[:0]
	for _, f := range fields {
		if f != name {
			out = append(out, f)
		}
	}
	return out
}
