package types

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Window bounds a query by update time. Zero values mean unbounded.
// UpdatedAfter is exclusive, UpdatedBefore is inclusive, so that resuming
// from a committed boundary never re-fetches the boundary record's window
// twice.
type Window struct {
	UpdatedAfter  time.Time
	UpdatedBefore time.Time
}

// Record is one source-of-truth row: a stable primary key, the row's update
// timestamp, and the selected column values keyed by field name.
type Record struct {
	PK        int64
	UpdatedAt time.Time
	Fields    map[string]any
}

// Document is an index-ready payload identified by a stable document ID.
// Writes are upserts by ID, so duplicate delivery is safe.
type Document struct {
	ID     string
	Fields map[string]any
}

// Source produces stably-ordered, paginated records filterable by update
// time. Pagination is keyed on the primary key ascending so it stays
// deterministic when update times collide.
type Source interface {
	Count(ctx context.Context, w Window) (int, error)
	Page(ctx context.Context, afterPK int64, limit int, w Window) ([]Record, error)
}

// SQLSource reads records from a PostgreSQL table.
type SQLSource struct {
	DB            *sql.DB
	Table         string
	PKColumn      string
	UpdatedColumn string
	Columns       []string
}

// Count returns the number of rows inside the window.
func (s *SQLSource) Count(ctx context.Context, w Window) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.Table)
	where, args := s.windowClause(w, 1)
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", s.Table, err)
	}
	return n, nil
}

// Page fetches up to limit rows with primary key greater than afterPK,
// ordered by primary key ascending.
func (s *SQLSource) Page(ctx context.Context, afterPK int64, limit int, w Window) ([]Record, error) {
	cols := append([]string{s.PKColumn, s.UpdatedColumn}, s.Columns...)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > $1", strings.Join(cols, ", "), s.Table, s.PKColumn)
	args := []any{afterPK}
	where, wargs := s.windowClause(w, 2)
	if where != "" {
		query += " AND " + where
		args = append(args, wargs...)
	}
	query += fmt.Sprintf(" ORDER BY %s ASC LIMIT %d", s.PKColumn, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("paging %s after pk %d: %w", s.Table, afterPK, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{Fields: make(map[string]any, len(s.Columns))}
		dest := make([]any, 0, len(cols))
		dest = append(dest, &rec.PK, &rec.UpdatedAt)
		values := make([]any, len(s.Columns))
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.Table, err)
		}
		for i, col := range s.Columns {
			rec.Fields[col] = normalizeSQLValue(values[i])
		}
		rec.Fields[s.UpdatedColumn] = rec.UpdatedAt
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", s.Table, err)
	}
	return records, nil
}

func (s *SQLSource) windowClause(w Window, argOffset int) (string, []any) {
	var parts []string
	var args []any
	if !w.UpdatedAfter.IsZero() {
		parts = append(parts, fmt.Sprintf("%s > $%d", s.UpdatedColumn, argOffset))
		args = append(args, w.UpdatedAfter)
		argOffset++
	}
	if !w.UpdatedBefore.IsZero() {
		parts = append(parts, fmt.Sprintf("%s <= $%d", s.UpdatedColumn, argOffset))
		args = append(args, w.UpdatedBefore)
	}
	return strings.Join(parts, " AND "), args
}

// normalizeSQLValue converts driver-level values ([]byte for text columns)
// into plain Go values.
func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// MemorySource is an in-process Source used by tests and local development.
type MemorySource struct {
	Records []Record
}

func (s *MemorySource) Count(_ context.Context, w Window) (int, error) {
	n := 0
	for _, rec := range s.Records {
		if inWindow(rec, w) {
			n++
		}
	}
	return n, nil
}

func (s *MemorySource) Page(_ context.Context, afterPK int64, limit int, w Window) ([]Record, error) {
	var out []Record
	for _, rec := range s.Records {
		if rec.PK <= afterPK || !inWindow(rec, w) {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func inWindow(rec Record, w Window) bool {
	if !w.UpdatedAfter.IsZero() && !rec.UpdatedAt.After(w.UpdatedAfter) {
		return false
	}
	if !w.UpdatedBefore.IsZero() && rec.UpdatedAt.After(w.UpdatedBefore) {
		return false
	}
	return true
}
