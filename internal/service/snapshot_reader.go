package service

import (
	"context"

	"reconciler-server/internal/domain"
	"reconciler-server/internal/store"
)

// SnapshotReader fetches a record's current representation from each store.
// Each read is a single best-effort fetch; retry policy belongs to the
// caller. Not-found is a valid outcome, not an error.
type SnapshotReader struct {
	primary   store.PrimaryStore
	secondary store.SecondaryStore
}

func NewSnapshotReader(primary store.PrimaryStore, secondary store.SecondaryStore) *SnapshotReader {
	return &SnapshotReader{
		primary:   primary,
		secondary: secondary,
	}
}

func (r *SnapshotReader) ReadPrimary(ctx context.Context, table, id string) (domain.Record, bool, error) {
	return r.primary.Get(ctx, table, id)
}

func (r *SnapshotReader) ReadSecondary(ctx context.Context, table, id string) (domain.Record, bool, error) {
	return r.secondary.Get(ctx, table, id)
}
