package store

import (
	"context"
	"fmt"

	"reconciler-server/internal/domain"
)

// PrimaryStore is the relational record store. Records are addressed by
// table and id; Put is a field-level overwrite (upsert), never a delta. A nil
// field value clears the field (NULL column, removed document field).
type PrimaryStore interface {
	Get(ctx context.Context, table, id string) (domain.Record, bool, error)
	Put(ctx context.Context, table, id string, record domain.Record) error
	Delete(ctx context.Context, table, id string) error
}

// SecondaryStore is the document-oriented store. Same contract as the
// primary; the addressing and query mechanism differ underneath.
type SecondaryStore interface {
	Get(ctx context.Context, table, id string) (domain.Record, bool, error)
	Put(ctx context.Context, table, id string, record domain.Record) error
	Delete(ctx context.Context, table, id string) error
}

// Error wraps a store failure with enough context to decide on retry.
type Error struct {
	Store     string
	Op        string
	Table     string
	RecordID  string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s store: %s %s/%s: %v", e.Store, e.Op, e.Table, e.RecordID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(store, op, table, id string, err error) *Error {
	return &Error{
		Store:     store,
		Op:        op,
		Table:     table,
		RecordID:  id,
		Err:       err,
		Retryable: true,
	}
}
