package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/agentic-research/taxotree/internal/rowsvtab"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNodeNotFound is returned when a label path does not exist in a build.
var ErrNodeNotFound = errors.New("node not found")

// TreeDB reads trees stored by SQLiteWriter.
type TreeDB struct {
	db   *sql.DB
	conn *sql.Conn
	id   string
}

// OpenTreeDB opens an existing tree database read-only and attaches the
// node_rows virtual table to it.
func OpenTreeDB(ctx context.Context, path string) (*TreeDB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	// The module must be registered before the first connection is made.
	mod, err := rowsvtab.Register()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection is pinned for queries; the vtab's Filter runs while that
	// connection is busy and needs the second one to read the nodes table.
	db.SetMaxOpenConns(2)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}

	id := "tree_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	mod.RegisterDB(id, db)
	t := &TreeDB{db: db, conn: conn, id: id}

	// node_rows lives in the temp schema of the pinned connection, so the
	// file itself is never modified.
	q := fmt.Sprintf("CREATE VIRTUAL TABLE temp.node_rows USING %s(%s)", rowsvtab.ModuleName, id)
	if _, err := conn.ExecContext(ctx, q); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("create node_rows: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only=ON"); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("set query_only: %w", err)
	}
	return t, nil
}

// LatestBuild returns the id of the most recently stored build.
func (t *TreeDB) LatestBuild(ctx context.Context) (string, error) {
	var id string
	err := t.conn.QueryRowContext(ctx, "SELECT id FROM builds ORDER BY created DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no builds stored: %w", ErrNodeNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query builds: %w", err)
	}
	return id, nil
}

// Lookup follows labels from the top level down and returns the id of the
// node they name.
func (t *TreeDB) Lookup(ctx context.Context, buildID string, labels []string) (int64, error) {
	if len(labels) == 0 {
		return 0, fmt.Errorf("empty path: %w", ErrNodeNotFound)
	}

	var parent sql.NullInt64
	for i, label := range labels {
		var id int64
		err := t.conn.QueryRowContext(ctx,
			"SELECT id FROM nodes WHERE build_id = ? AND parent_id IS ? AND name = ?",
			buildID, parent, label,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", strings.Join(labels[:i+1], "/"), ErrNodeNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("lookup %s: %w", label, err)
		}
		parent = sql.NullInt64{Int64: id, Valid: true}
	}
	return parent.Int64, nil
}

// Rows returns the ordinals of the input records that pass through the node,
// in ascending order.
func (t *TreeDB) Rows(ctx context.Context, nodeID int64) ([]uint32, error) {
	rows, err := t.conn.QueryContext(ctx, "SELECT ordinal FROM node_rows WHERE node_id = ? ORDER BY ordinal", nodeID)
	if err != nil {
		return nil, fmt.Errorf("query node_rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []uint32
	for rows.Next() {
		var r int64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan node_rows: %w", err)
		}
		out = append(out, uint32(r))
	}
	return out, rows.Err()
}

// Close detaches the virtual table and closes the database.
func (t *TreeDB) Close() error {
	if mod, err := rowsvtab.Register(); err == nil && mod != nil {
		mod.UnregisterDB(t.id)
	}
	err := t.conn.Close()
	if err2 := t.db.Close(); err == nil {
		err = err2
	}
	return err
}
