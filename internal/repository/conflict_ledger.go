package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reconciler-server/internal/domain"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrDuplicateConflict = errors.New("an unresolved conflict already exists for this record")
	ErrConflictNotFound  = errors.New("conflict not found")
	ErrInvalidTransition = errors.New("invalid conflict status transition")
)

// ConflictLedger is the durable record of detected conflicts and their
// lifecycle. Store rejects a second open conflict for the same
// (table, record, type); status transitions are one-directional except for
// failed -> resolving retries.
type ConflictLedger interface {
	Store(ctx context.Context, conflict *domain.Conflict) error
	Get(ctx context.Context, id string) (*domain.Conflict, error)
	UpdateStatus(ctx context.Context, id string, status domain.ConflictStatus, resolution *domain.Resolution) error
	ListUnresolved(ctx context.Context) ([]*domain.Conflict, error)
	ListAll(ctx context.Context) ([]*domain.Conflict, error)
	FindOpen(ctx context.Context, table, recordID string) ([]*domain.Conflict, error)
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS conflicts (
	id              TEXT PRIMARY KEY,
	table_name      TEXT NOT NULL,
	record_id       TEXT NOT NULL,
	conflict_type   TEXT NOT NULL,
	primary_data    TEXT NOT NULL,
	secondary_data  TEXT NOT NULL,
	conflict_fields TEXT NOT NULL,
	detected_at     TIMESTAMP NOT NULL,
	resolved_at     TIMESTAMP,
	resolution      TEXT,
	status          TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conflicts_open
	ON conflicts (table_name, record_id, conflict_type)
	WHERE status IN ('detected', 'resolving');

CREATE INDEX IF NOT EXISTS idx_conflicts_status ON conflicts (status);
`

type sqliteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates the conflicts table and indexes if needed and
// returns a ledger backed by the given handle.
func NewSQLiteLedger(db *sql.DB) (ConflictLedger, error) {
	if _, err := db.Exec(ledgerSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize conflict ledger schema: %w", err)
	}
	return &sqliteLedger{db: db}, nil
}

func (l *sqliteLedger) Store(ctx context.Context, c *domain.Conflict) error {
	primaryJSON, err := json.Marshal(c.PrimaryData)
	if err != nil {
		return fmt.Errorf("failed to encode primary snapshot: %w", err)
	}
	secondaryJSON, err := json.Marshal(c.SecondaryData)
	if err != nil {
		return fmt.Errorf("failed to encode secondary snapshot: %w", err)
	}
	fieldsJSON, err := json.Marshal(c.ConflictFields)
	if err != nil {
		return fmt.Errorf("failed to encode conflict fields: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO conflicts
			(id, table_name, record_id, conflict_type, primary_data, secondary_data, conflict_fields, detected_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Table, c.RecordID, string(c.Type),
		string(primaryJSON), string(secondaryJSON), string(fieldsJSON),
		c.DetectedAt, string(c.Status),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateConflict
		}
		return fmt.Errorf("failed to store conflict: %w", err)
	}

	return nil
}

func (l *sqliteLedger) Get(ctx context.Context, id string) (*domain.Conflict, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, table_name, record_id, conflict_type, primary_data, secondary_data,
		       conflict_fields, detected_at, resolved_at, resolution, status
		FROM conflicts WHERE id = ?`, id)

	conflict, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConflictNotFound
	}
	return conflict, err
}

// validTransitions maps a current status to the statuses it may move to.
// failed conflicts may re-enter resolving for a fresh attempt; resolving may
// be re-entered to persist an updated resolution payload on retry.
var validTransitions = map[domain.ConflictStatus][]domain.ConflictStatus{
	domain.StatusDetected:  {domain.StatusResolving},
	domain.StatusResolving: {domain.StatusResolving, domain.StatusResolved, domain.StatusFailed},
	domain.StatusFailed:    {domain.StatusResolving},
	domain.StatusResolved:  {},
}

func transitionAllowed(from, to domain.ConflictStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (l *sqliteLedger) UpdateStatus(ctx context.Context, id string, status domain.ConflictStatus, resolution *domain.Resolution) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM conflicts WHERE id = ?`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConflictNotFound
		}
		return fmt.Errorf("failed to read conflict status: %w", err)
	}

	if !transitionAllowed(domain.ConflictStatus(current), status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	var resolutionJSON any
	if resolution != nil {
		encoded, err := json.Marshal(resolution)
		if err != nil {
			return fmt.Errorf("failed to encode resolution: %w", err)
		}
		resolutionJSON = string(encoded)
	}

	if status == domain.StatusResolved {
		_, err = tx.ExecContext(ctx, `
			UPDATE conflicts SET status = ?, resolution = COALESCE(?, resolution), resolved_at = ?
			WHERE id = ?`,
			string(status), resolutionJSON, time.Now().UTC(), id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE conflicts SET status = ?, resolution = COALESCE(?, resolution)
			WHERE id = ?`,
			string(status), resolutionJSON, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update conflict status: %w", err)
	}

	return tx.Commit()
}

func (l *sqliteLedger) ListUnresolved(ctx context.Context) ([]*domain.Conflict, error) {
	return l.list(ctx, `
		SELECT id, table_name, record_id, conflict_type, primary_data, secondary_data,
		       conflict_fields, detected_at, resolved_at, resolution, status
		FROM conflicts
		WHERE status IN ('detected', 'resolving', 'failed')
		ORDER BY detected_at`)
}

func (l *sqliteLedger) ListAll(ctx context.Context) ([]*domain.Conflict, error) {
	return l.list(ctx, `
		SELECT id, table_name, record_id, conflict_type, primary_data, secondary_data,
		       conflict_fields, detected_at, resolved_at, resolution, status
		FROM conflicts
		ORDER BY detected_at`)
}

func (l *sqliteLedger) FindOpen(ctx context.Context, table, recordID string) ([]*domain.Conflict, error) {
	return l.list(ctx, `
		SELECT id, table_name, record_id, conflict_type, primary_data, secondary_data,
		       conflict_fields, detected_at, resolved_at, resolution, status
		FROM conflicts
		WHERE table_name = ? AND record_id = ? AND status IN ('detected', 'resolving')
		ORDER BY detected_at`, table, recordID)
}

func (l *sqliteLedger) list(ctx context.Context, query string, args ...any) ([]*domain.Conflict, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*domain.Conflict
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, conflict)
	}

	return conflicts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConflict(row rowScanner) (*domain.Conflict, error) {
	var (
		c              domain.Conflict
		conflictType   string
		status         string
		primaryJSON    string
		secondaryJSON  string
		fieldsJSON     string
		resolvedAt     sql.NullTime
		resolutionJSON sql.NullString
	)

	err := row.Scan(&c.ID, &c.Table, &c.RecordID, &conflictType, &primaryJSON,
		&secondaryJSON, &fieldsJSON, &c.DetectedAt, &resolvedAt, &resolutionJSON, &status)
	if err != nil {
		return nil, err
	}

	c.Type = domain.ConflictType(conflictType)
	c.Status = domain.ConflictStatus(status)

	if err := json.Unmarshal([]byte(primaryJSON), &c.PrimaryData); err != nil {
		return nil, fmt.Errorf("failed to decode primary snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(secondaryJSON), &c.SecondaryData); err != nil {
		return nil, fmt.Errorf("failed to decode secondary snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &c.ConflictFields); err != nil {
		return nil, fmt.Errorf("failed to decode conflict fields: %w", err)
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	if resolutionJSON.Valid && resolutionJSON.String != "" {
		var res domain.Resolution
		if err := json.Unmarshal([]byte(resolutionJSON.String), &res); err != nil {
			return nil, fmt.Errorf("failed to decode resolution: %w", err)
		}
		c.Resolution = &res
	}

	return &c, nil
}
