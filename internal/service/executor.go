package service

import (
	"context"
	"fmt"
	"time"

	"reconciler-server/internal/domain"
	"reconciler-server/internal/repository"
	"reconciler-server/internal/store"
	"reconciler-server/pkg/compare"

	"github.com/rs/zerolog"
)

const (
	winnerPrimary   = "primary"
	winnerSecondary = "secondary"
)

// ResolutionExecutor applies a resolution strategy, writes the resolved
// value to the losing store(s) and closes the ledger entry. Writes are
// full-field overwrites, so re-applying a persisted resolution converges to
// the same state.
type ResolutionExecutor struct {
	ledger         repository.ConflictLedger
	snapshots      *SnapshotReader
	primary        store.PrimaryStore
	secondary      store.SecondaryStore
	timestampField string
	logger         zerolog.Logger
}

func NewResolutionExecutor(
	ledger repository.ConflictLedger,
	snapshots *SnapshotReader,
	primary store.PrimaryStore,
	secondary store.SecondaryStore,
	timestampField string,
	logger zerolog.Logger,
) *ResolutionExecutor {
	return &ResolutionExecutor{
		ledger:         ledger,
		snapshots:      snapshots,
		primary:        primary,
		secondary:      secondary,
		timestampField: timestampField,
		logger:         logger.With().Str("component", "resolution_executor").Logger(),
	}
}

// Resolve runs one resolution attempt for the conflict. On success the
// ledger entry moves to resolved; a failed store write moves it to failed
// with the materialized resolution preserved, so a retry re-applies the
// identical write.
func (e *ResolutionExecutor) Resolve(ctx context.Context, c *domain.Conflict, res *domain.Resolution) error {
	if c.Status == domain.StatusResolved {
		// Crash-retry of an already-applied resolution: re-apply the
		// persisted writes and report success. Anything else is a second,
		// different resolution and is rejected.
		if c.Resolution != nil && sameResolution(c.Resolution, res) {
			return e.apply(ctx, c, c.Resolution)
		}
		return ErrConflictClosed
	}

	if !knownStrategy(res.Strategy) {
		// The entry stays in resolving for manual intervention.
		if err := e.ledger.UpdateStatus(ctx, c.ID, domain.StatusResolving, nil); err == nil {
			c.Status = domain.StatusResolving
		}
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, res.Strategy)
	}

	if err := e.validate(c, res); err != nil {
		return err
	}

	if err := e.materialize(ctx, c, res); err != nil {
		return err
	}
	res.AppliedAt = time.Now().UTC()

	// Persist the attempt before touching either store: a partial write
	// failure must leave the exact payload behind for retry.
	if err := e.ledger.UpdateStatus(ctx, c.ID, domain.StatusResolving, res); err != nil {
		return err
	}
	c.Status = domain.StatusResolving
	c.Resolution = res

	if err := e.apply(ctx, c, res); err != nil {
		e.logger.Error().
			Str("conflict_id", c.ID).
			Str("strategy", string(res.Strategy)).
			Err(err).
			Msg("resolution write failed")
		if updateErr := e.ledger.UpdateStatus(ctx, c.ID, domain.StatusFailed, res); updateErr != nil {
			return fmt.Errorf("resolution failed (%v) and ledger update failed: %w", err, updateErr)
		}
		c.Status = domain.StatusFailed
		return err
	}

	if err := e.ledger.UpdateStatus(ctx, c.ID, domain.StatusResolved, res); err != nil {
		return err
	}
	c.Status = domain.StatusResolved
	now := time.Now().UTC()
	c.ResolvedAt = &now

	e.logger.Info().
		Str("conflict_id", c.ID).
		Str("table", c.Table).
		Str("record_id", c.RecordID).
		Str("strategy", string(res.Strategy)).
		Msg("conflict resolved")

	return nil
}

func knownStrategy(s domain.ResolutionStrategy) bool {
	switch s {
	case domain.StrategyPrimaryWins, domain.StrategySecondaryWins,
		domain.StrategyTimestampWins, domain.StrategyMerge, domain.StrategyManual:
		return true
	}
	return false
}

func (e *ResolutionExecutor) validate(c *domain.Conflict, res *domain.Resolution) error {
	if res.Strategy != domain.StrategyMerge && res.Strategy != domain.StrategyManual {
		return nil
	}

	if res.Strategy == domain.StrategyManual && res.ResolvedBy == "" {
		return fmt.Errorf("manual resolution requires an acting identity")
	}

	// A supplied field set must cover everything the conflict flagged,
	// otherwise part of the divergence would be silently dropped. Deletion
	// conflicts carry only the existence sentinel and are exempt.
	if c.Type == domain.ConflictTypeDeletion {
		if len(res.ResolvedData) == 0 {
			return fmt.Errorf("%w: %s resolution of a deletion conflict requires the record data", ErrIncompleteResolution, res.Strategy)
		}
		return nil
	}

	for _, field := range c.ConflictFields {
		if _, ok := res.ResolvedData[field]; !ok {
			return fmt.Errorf("%w: missing %q", ErrIncompleteResolution, field)
		}
	}
	return nil
}

// materialize turns the strategy into a concrete winner and field set.
func (e *ResolutionExecutor) materialize(ctx context.Context, c *domain.Conflict, res *domain.Resolution) error {
	switch res.Strategy {
	case domain.StrategyPrimaryWins:
		res.Winner = winnerPrimary
		res.ResolvedData = e.sideData(c, c.PrimaryData)
	case domain.StrategySecondaryWins:
		res.Winner = winnerSecondary
		res.ResolvedData = e.sideData(c, c.SecondaryData)
	case domain.StrategyTimestampWins:
		// Decided at resolution time, not detection time: more writes may
		// have landed since the conflict was recorded.
		winner, record, err := e.pickNewer(ctx, c)
		if err != nil {
			return err
		}
		res.Winner = winner
		res.ResolvedData = e.sideData(c, record)
	case domain.StrategyMerge, domain.StrategyManual:
		// Caller-supplied field set, written to both stores.
	}
	return nil
}

// sideData extracts the write payload from the winning side: the conflicting
// fields for a present record, nil (a tombstone) for an absent one. Deletion
// conflicts propagate the full record since the other side has nothing.
// A conflicted field the winner does not carry is written as nil so the
// loser's copy is cleared; otherwise the divergence would survive the
// resolution and the next detection pass would reopen it.
func (e *ResolutionExecutor) sideData(c *domain.Conflict, winning domain.Record) domain.Record {
	if len(winning) == 0 {
		return nil
	}
	if c.Type == domain.ConflictTypeDeletion {
		return winning
	}

	out := make(domain.Record, len(c.ConflictFields))
	for _, field := range c.ConflictFields {
		if field == domain.ExistenceField {
			continue
		}
		out[field] = winning[field]
	}
	return out
}

func (e *ResolutionExecutor) pickNewer(ctx context.Context, c *domain.Conflict) (string, domain.Record, error) {
	primary, primaryFound, err := e.snapshots.ReadPrimary(ctx, c.Table, c.RecordID)
	if err != nil {
		return "", nil, err
	}
	secondary, secondaryFound, err := e.snapshots.ReadSecondary(ctx, c.Table, c.RecordID)
	if err != nil {
		return "", nil, err
	}

	if primaryFound != secondaryFound {
		if primaryFound {
			return winnerPrimary, primary, nil
		}
		return winnerSecondary, secondary, nil
	}
	if !primaryFound {
		return "", nil, fmt.Errorf("record %s/%s no longer exists in either store", c.Table, c.RecordID)
	}

	primaryTS, pok := extractTimestamp(primary[e.timestampField])
	secondaryTS, sok := extractTimestamp(secondary[e.timestampField])
	switch {
	case pok && sok:
		if secondaryTS.After(primaryTS) {
			return winnerSecondary, secondary, nil
		}
		return winnerPrimary, primary, nil
	case pok:
		return winnerPrimary, primary, nil
	case sok:
		return winnerSecondary, secondary, nil
	default:
		return "", nil, ErrTimestampUnavailable
	}
}

// apply performs the cross-store writes for a materialized resolution.
func (e *ResolutionExecutor) apply(ctx context.Context, c *domain.Conflict, res *domain.Resolution) error {
	switch res.Strategy {
	case domain.StrategyMerge, domain.StrategyManual:
		// Both stores receive the final field set. If the first write
		// succeeds and the second fails the conflict is marked failed, but
		// the persisted resolution makes the retry re-apply the identical
		// overwrite rather than re-derive it.
		if err := e.primary.Put(ctx, c.Table, c.RecordID, res.ResolvedData); err != nil {
			return err
		}
		return e.secondary.Put(ctx, c.Table, c.RecordID, res.ResolvedData)
	}

	switch res.Winner {
	case winnerPrimary:
		if res.ResolvedData == nil {
			return e.secondary.Delete(ctx, c.Table, c.RecordID)
		}
		return e.secondary.Put(ctx, c.Table, c.RecordID, res.ResolvedData)
	case winnerSecondary:
		if res.ResolvedData == nil {
			return e.primary.Delete(ctx, c.Table, c.RecordID)
		}
		return e.primary.Put(ctx, c.Table, c.RecordID, res.ResolvedData)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, res.Strategy)
	}
}

func sameResolution(persisted, incoming *domain.Resolution) bool {
	if persisted.Strategy != incoming.Strategy {
		return false
	}
	if len(incoming.ResolvedData) == 0 {
		return true
	}
	return compare.Equal(map[string]any(persisted.ResolvedData), map[string]any(incoming.ResolvedData))
}
