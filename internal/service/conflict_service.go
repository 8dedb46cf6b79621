package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reconciler-server/internal/domain"
	"reconciler-server/internal/locking"
	"reconciler-server/internal/repository"

	"github.com/rs/zerolog"
)

// Notifier receives conflict lifecycle events, typically to push them to
// connected operator consoles.
type Notifier interface {
	ConflictDetected(c *domain.Conflict)
	ConflictResolved(c *domain.Conflict)
	ConflictFailed(c *domain.Conflict, cause error)
}

// ConflictService orchestrates detection and resolution for single records.
// Detection and resolution of different records run concurrently; per-record
// work is serialized through the lock arena.
type ConflictService struct {
	ledger         repository.ConflictLedger
	snapshots      *SnapshotReader
	classifier     *Classifier
	executor       *ResolutionExecutor
	registry       *RuleRegistry
	metrics        *MetricsAggregator
	locks          *locking.KeyedMutex
	notifier       Notifier
	resolveTimeout time.Duration
	logger         zerolog.Logger
}

func NewConflictService(
	ledger repository.ConflictLedger,
	snapshots *SnapshotReader,
	classifier *Classifier,
	executor *ResolutionExecutor,
	registry *RuleRegistry,
	metrics *MetricsAggregator,
	notifier Notifier,
	resolveTimeout time.Duration,
	logger zerolog.Logger,
) *ConflictService {
	return &ConflictService{
		ledger:         ledger,
		snapshots:      snapshots,
		classifier:     classifier,
		executor:       executor,
		registry:       registry,
		metrics:        metrics,
		locks:          locking.NewKeyedMutex(),
		notifier:       notifier,
		resolveTimeout: resolveTimeout,
		logger:         logger.With().Str("component", "conflict_service").Logger(),
	}
}

func lockKey(table, recordID string) string {
	return table + "/" + recordID
}

// DetectConflicts fetches both store-side snapshots of the record,
// classifies the divergence and persists any new conflicts. Safe to call
// repeatedly: a conflict type that already has an open ledger entry for the
// record is returned as-is instead of being stacked, and a converged record
// yields an empty list. A store read failure aborts the whole detection
// without persisting a partial conflict.
func (s *ConflictService) DetectConflicts(ctx context.Context, table, recordID string) ([]*domain.Conflict, error) {
	release := s.locks.Acquire(lockKey(table, recordID))
	defer release()

	primary, primaryFound, err := s.snapshots.ReadPrimary(ctx, table, recordID)
	if err != nil {
		return nil, fmt.Errorf("detection aborted: %w", err)
	}
	secondary, secondaryFound, err := s.snapshots.ReadSecondary(ctx, table, recordID)
	if err != nil {
		return nil, fmt.Errorf("detection aborted: %w", err)
	}

	drafts := s.classifier.Classify(table, recordID, primary, primaryFound, secondary, secondaryFound)

	open, err := s.ledger.FindOpen(ctx, table, recordID)
	if err != nil {
		return nil, err
	}
	openByType := make(map[domain.ConflictType]*domain.Conflict, len(open))
	for _, c := range open {
		openByType[c.Type] = c
	}

	conflicts := make([]*domain.Conflict, 0, len(drafts))
	for _, draft := range drafts {
		if existing, ok := openByType[draft.Type]; ok {
			conflicts = append(conflicts, existing)
			continue
		}

		if err := s.ledger.Store(ctx, draft); err != nil {
			if errors.Is(err, repository.ErrDuplicateConflict) {
				continue
			}
			return nil, err
		}

		s.metrics.RecordDetected(draft)
		if s.notifier != nil {
			s.notifier.ConflictDetected(draft)
		}
		s.logger.Info().
			Str("conflict_id", draft.ID).
			Str("table", table).
			Str("record_id", recordID).
			Str("type", string(draft.Type)).
			Strs("fields", draft.ConflictFields).
			Msg("conflict detected")

		conflicts = append(conflicts, draft)
	}

	return conflicts, nil
}

// ResolveConflict runs one resolution attempt under the record lock and a
// bounded deadline. The cross-store writes in merge/manual are the slowest
// path and must not hang indefinitely.
func (s *ConflictService) ResolveConflict(ctx context.Context, conflictID string, req *domain.ResolveConflictRequest) error {
	c, err := s.ledger.Get(ctx, conflictID)
	if err != nil {
		return err
	}

	release := s.locks.Acquire(lockKey(c.Table, c.RecordID))
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	defer cancel()

	// Re-read under the lock: another resolver may have advanced it.
	c, err = s.ledger.Get(ctx, conflictID)
	if err != nil {
		return err
	}

	res := &domain.Resolution{
		Strategy:     req.Strategy,
		ResolvedData: req.ResolvedData,
		ResolvedBy:   req.ResolvedBy,
		Notes:        req.Notes,
	}

	// An idempotent re-apply of an already-resolved conflict must not count
	// a second resolution.
	wasResolved := c.Status == domain.StatusResolved

	if err := s.executor.Resolve(ctx, c, res); err != nil {
		if c.Status == domain.StatusFailed {
			s.metrics.RecordFailed(c)
			if s.notifier != nil {
				s.notifier.ConflictFailed(c, err)
			}
		}
		return err
	}

	if !wasResolved {
		s.metrics.RecordResolved(c, time.Since(c.DetectedAt))
		if s.notifier != nil {
			s.notifier.ConflictResolved(c)
		}
	}

	return nil
}

// AutoResolve applies the default strategy of the table's detection rule.
// Tables whose rules default to manual (and tables without rules) are left
// for an operator.
func (s *ConflictService) AutoResolve(ctx context.Context, conflictID string) error {
	c, err := s.ledger.Get(ctx, conflictID)
	if err != nil {
		return err
	}

	strategy := s.registry.DefaultStrategyFor(c.Table)
	if strategy == domain.StrategyManual {
		return ErrManualResolutionRequired
	}

	return s.ResolveConflict(ctx, conflictID, &domain.ResolveConflictRequest{
		Strategy:   strategy,
		ResolvedBy: "auto-policy",
	})
}

func (s *ConflictService) Get(ctx context.Context, conflictID string) (*domain.Conflict, error) {
	return s.ledger.Get(ctx, conflictID)
}

func (s *ConflictService) GetUnresolvedConflicts(ctx context.Context) ([]*domain.Conflict, error) {
	conflicts, err := s.ledger.ListUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	if conflicts == nil {
		conflicts = []*domain.Conflict{}
	}
	return conflicts, nil
}

func (s *ConflictService) GetMetrics() domain.Metrics {
	return s.metrics.Snapshot()
}

// RebuildMetrics reconstructs the aggregate from a full ledger scan. Called
// once at startup; the ledger is the only source of truth.
func (s *ConflictService) RebuildMetrics(ctx context.Context) error {
	conflicts, err := s.ledger.ListAll(ctx)
	if err != nil {
		return err
	}
	s.metrics.Rebuild(conflicts)
	return nil
}

func (s *ConflictService) ReloadRules(ctx context.Context) error {
	return s.registry.Reload(ctx)
}
