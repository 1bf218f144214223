package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agentic-research/taxotree/internal/tree"
	_ "modernc.org/sqlite"
)

// SQLiteSource streams rows out of one table of a SQLite database.
// Only one row is alive at a time, keeping memory usage constant.
// Path is an OS path; the database cannot be read through a billy filesystem.
type SQLiteSource struct {
	Path  string
	Table string
}

// Stream implements Source. SQL NULL reads as nil.
func (s *SQLiteSource) Stream(ctx context.Context, levels []string, fn func(tree.Record) error) error {
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", s.Path, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	cols, err := tableColumns(ctx, db, s.Table)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	if err := checkColumns(s.Path+":"+s.Table, levels, cols); err != nil {
		return err
	}

	quoted := make([]string, len(levels))
	for i, level := range levels {
		quoted[i] = quoteIdent(level)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(s.Table))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query %s: %w", s.Table, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	vals := make([]any, len(levels))
	ptrs := make([]any, len(levels))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for n := 0; rows.Next(); n++ {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		rec := make(tree.Record, len(levels))
		for i, level := range levels {
			rec[level] = vals[i]
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("%s row %d: %w", s.Path, n, err)
		}
	}
	return rows.Err()
}

// tableColumns returns the column names of table mapped to their position.
func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	cols := make(map[string]int, len(names))
	for i, name := range names {
		cols[name] = i
	}
	return cols, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
