package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"reconciler-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
	"github.com/rs/zerolog"
)

// RuleRepository loads detection rules from the rule configuration store.
// Rules are administered out of band; the engine only ever reads them.
type RuleRepository interface {
	LoadAll(ctx context.Context) ([]*domain.DetectionRule, error)
}

type ruleRepository struct {
	client *kivik.Client
	dbName string
	logger zerolog.Logger
}

func NewRuleRepository(client *kivik.Client, dbName string, logger zerolog.Logger) RuleRepository {
	return &ruleRepository{
		client: client,
		dbName: dbName,
		logger: logger.With().Str("component", "rule_repository").Logger(),
	}
}

func (r *ruleRepository) LoadAll(ctx context.Context) ([]*domain.DetectionRule, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type": "detection_rule",
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load detection rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.DetectionRule
	for rows.Next() {
		var raw json.RawMessage
		if err := rows.ScanDoc(&raw); err != nil {
			r.logger.Warn().Err(err).Msg("skipping unreadable detection rule document")
			continue
		}

		rule, err := decodeRule(raw)
		if err != nil {
			r.logger.Warn().
				Str("doc_id", rawDocID(raw)).
				Err(err).
				Msg("skipping undecodable detection rule document")
			continue
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// decodeRule unmarshals a rule document, falling back to the CouchDB _id when
// the rule carries no id of its own.
func decodeRule(raw json.RawMessage) (*domain.DetectionRule, error) {
	var doc struct {
		ID string `json:"_id"`
		domain.DetectionRule
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	rule := doc.DetectionRule
	if rule.ID == "" {
		rule.ID = doc.ID
	}
	return &rule, nil
}

// rawDocID extracts the document id for logging; best effort only.
func rawDocID(raw json.RawMessage) string {
	var doc struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return doc.ID
}
