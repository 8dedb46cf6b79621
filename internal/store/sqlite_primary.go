package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"reconciler-server/internal/domain"
)

var validIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type sqlitePrimary struct {
	db *sql.DB
}

// NewSQLitePrimary wraps an open database handle as the primary record
// store. Tables are expected to carry a TEXT id column as their key.
func NewSQLitePrimary(db *sql.DB) PrimaryStore {
	return &sqlitePrimary{db: db}
}

func (s *sqlitePrimary) Get(ctx context.Context, table, id string) (domain.Record, bool, error) {
	if err := checkIdent(table); err != nil {
		return nil, false, err
	}

	query := fmt.Sprintf(`SELECT * FROM "%s" WHERE id = ?`, table)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, false, newError("primary", "get", table, id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, newError("primary", "get", table, id, err)
		}
		return nil, false, nil
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, false, newError("primary", "get", table, id, err)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	if err := rows.Scan(ptrs...); err != nil {
		return nil, false, newError("primary", "get", table, id, err)
	}

	record := make(domain.Record, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			record[col] = string(b)
			continue
		}
		record[col] = values[i]
	}

	return record, true, nil
}

func (s *sqlitePrimary) Put(ctx context.Context, table, id string, record domain.Record) error {
	if err := checkIdent(table); err != nil {
		return err
	}

	fields := make([]string, 0, len(record))
	for field := range record {
		if field == "id" {
			continue
		}
		if err := checkIdent(field); err != nil {
			return err
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	columns := []string{`"id"`}
	placeholders := []string{"?"}
	args := []any{id}
	updates := make([]string, 0, len(fields))

	for _, field := range fields {
		columns = append(columns, fmt.Sprintf("%q", field))
		placeholders = append(placeholders, "?")
		args = append(args, record[field])
		updates = append(updates, fmt.Sprintf("%q = excluded.%q", field, field))
	}

	query := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	if len(updates) > 0 {
		query += fmt.Sprintf(" ON CONFLICT(id) DO UPDATE SET %s", strings.Join(updates, ", "))
	} else {
		query += " ON CONFLICT(id) DO NOTHING"
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return newError("primary", "put", table, id, err)
	}

	return nil
}

func (s *sqlitePrimary) Delete(ctx context.Context, table, id string) error {
	if err := checkIdent(table); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM "%s" WHERE id = ?`, table)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return newError("primary", "delete", table, id, err)
	}

	return nil
}

func checkIdent(name string) error {
	if !validIdent.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q", name)
	}
	return nil
}
