package repository

import (
	"encoding/json"
	"testing"

	"reconciler-server/internal/domain"
)

func TestDecodeRule(t *testing.T) {
	raw := json.RawMessage(`{
		"_id": "rule:items",
		"type": "detection_rule",
		"id": "rule-1",
		"table": "items",
		"conditions": [{"field": "name", "operator": "not_empty"}],
		"default_strategy": "primary_wins",
		"enabled": true
	}`)

	rule, err := decodeRule(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rule.ID != "rule-1" || rule.Table != "items" {
		t.Errorf("unexpected identity: %s/%s", rule.ID, rule.Table)
	}
	if len(rule.Conditions) != 1 || rule.Conditions[0].Operator != domain.OpNotEmpty {
		t.Errorf("unexpected conditions: %+v", rule.Conditions)
	}
	if rule.DefaultStrategy != domain.StrategyPrimaryWins || !rule.Enabled {
		t.Errorf("unexpected policy: %s enabled=%v", rule.DefaultStrategy, rule.Enabled)
	}
}

func TestDecodeRuleFallsBackToDocID(t *testing.T) {
	raw := json.RawMessage(`{
		"_id": "rule:users",
		"type": "detection_rule",
		"table": "users",
		"default_strategy": "manual",
		"enabled": true
	}`)

	rule, err := decodeRule(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rule.ID != "rule:users" {
		t.Errorf("expected the CouchDB _id as fallback, got %q", rule.ID)
	}
}

func TestDecodeRuleRejectsMalformedDocument(t *testing.T) {
	raw := json.RawMessage(`{
		"_id": "rule:broken",
		"type": "detection_rule",
		"table": "items",
		"conditions": "not an array",
		"default_strategy": "primary_wins"
	}`)

	if _, err := decodeRule(raw); err == nil {
		t.Fatal("expected a decode error for a structurally wrong document")
	}

	if got := rawDocID(raw); got != "rule:broken" {
		t.Errorf("expected the doc id still extractable for logging, got %q", got)
	}
}
