package service

import (
	"context"
	"sync"

	"reconciler-server/internal/domain"
	"reconciler-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// RuleRegistry caches detection rules per table. Rules are loaded once at
// startup and refreshed only through Reload; there is no background polling.
type RuleRegistry struct {
	repo     repository.RuleRepository
	validate *validator.Validate
	logger   zerolog.Logger

	mu      sync.RWMutex
	byTable map[string][]*domain.DetectionRule
}

func NewRuleRegistry(repo repository.RuleRepository, logger zerolog.Logger) *RuleRegistry {
	return &RuleRegistry{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.With().Str("component", "rule_registry").Logger(),
		byTable:  make(map[string][]*domain.DetectionRule),
	}
}

// Reload replaces the cache with the current rule set. A malformed rule is
// logged and skipped; it does not abort loading of the others.
func (r *RuleRegistry) Reload(ctx context.Context) error {
	rules, err := r.repo.LoadAll(ctx)
	if err != nil {
		return err
	}

	byTable := make(map[string][]*domain.DetectionRule)
	loaded, rejected := 0, 0
	for _, rule := range rules {
		if err := r.validate.Struct(rule); err != nil {
			rejected++
			r.logger.Warn().
				Str("rule_id", rule.ID).
				Str("table", rule.Table).
				Err(err).
				Msg("rejecting malformed detection rule")
			continue
		}
		byTable[rule.Table] = append(byTable[rule.Table], rule)
		loaded++
	}

	r.mu.Lock()
	r.byTable = byTable
	r.mu.Unlock()

	r.logger.Info().Int("loaded", loaded).Int("rejected", rejected).Msg("detection rules loaded")
	return nil
}

// RulesFor returns the enabled rules for a table. No rule is a valid state:
// classification then runs with default behaviour and resolution defaults to
// manual.
func (r *RuleRegistry) RulesFor(table string) []*domain.DetectionRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var enabled []*domain.DetectionRule
	for _, rule := range r.byTable[table] {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	return enabled
}

// DefaultStrategyFor returns the resolution strategy the automatic policy
// should use for a table.
func (r *RuleRegistry) DefaultStrategyFor(table string) domain.ResolutionStrategy {
	rules := r.RulesFor(table)
	if len(rules) == 0 {
		return domain.StrategyManual
	}
	return rules[0].DefaultStrategy
}
