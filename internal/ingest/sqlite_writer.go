package ingest

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/agentic-research/taxotree/internal/tree"
	"github.com/google/uuid"
	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteWriter stores built trees as a flat node table.
// One database can hold several builds; each gets its own build id.
// Engine.Export appends to an existing database this way, so repeated
// builds to the same .db file keep every earlier build readable by id.
// The row_bitmap column holds the node's row ordinals as a serialized roaring
// bitmap; TreeDB expands it through the taxotree_rows virtual table.
type SQLiteWriter struct {
	db        *sql.DB
	tx        *sql.Tx
	stmtNode  *sql.Stmt
	batchSize int
	count     int
	nextID    int64
	mu        sync.Mutex

	Log *zap.Logger
}

// NewSQLiteWriter creates a new writer and initializes the schema.
func NewSQLiteWriter(dbPath string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Performance tuning for bulk insert
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		levels JSON NOT NULL,
		length_constant REAL NOT NULL,
		sentinel TEXT NOT NULL,
		records INTEGER NOT NULL,
		created INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY,
		build_id TEXT NOT NULL REFERENCES builds(id),
		parent_id INTEGER,
		name TEXT NOT NULL,
		level TEXT NOT NULL,
		depth INTEGER NOT NULL,
		length REAL NOT NULL,
		support INTEGER NOT NULL,
		row_bitmap BLOB NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var maxID sql.NullInt64
	if err := db.QueryRow("SELECT MAX(id) FROM nodes").Scan(&maxID); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read node ids: %w", err)
	}

	return &SQLiteWriter{
		db:        db,
		batchSize: 10000,
		nextID:    maxID.Int64 + 1,
		Log:       zap.NewNop(),
	}, nil
}

func (w *SQLiteWriter) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return err
	}
	// Prepare statement for fast inserts
	w.stmtNode, err = w.tx.Prepare(`
		INSERT INTO nodes (id, build_id, parent_id, name, level, depth, length, support, row_bitmap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	return err
}

func (w *SQLiteWriter) commitTx() error {
	if w.stmtNode != nil {
		_ = w.stmtNode.Close()
		w.stmtNode = nil
	}
	return w.tx.Commit()
}

// Write stores every node of b under a fresh build id and returns the id.
// The synthetic root is not stored; level-0 nodes have a NULL parent_id.
func (w *SQLiteWriter) Write(b *tree.Builder) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	schema := b.Schema()
	buildID := uuid.NewString()
	levels := make([]any, len(schema.Levels))
	for i, level := range schema.Levels {
		levels[i] = level
	}

	if err := w.beginTx(); err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	_, err := w.tx.Exec(
		`INSERT INTO builds (id, levels, length_constant, sentinel, records, created) VALUES (?, ?, ?, ?, ?, ?)`,
		buildID, oj.JSON(levels), schema.LengthConstant, schema.Sentinel, b.Len(), time.Now().UnixNano(),
	)
	if err != nil {
		_ = w.tx.Rollback()
		return "", fmt.Errorf("insert build: %w", err)
	}

	if err := w.writeChildren(buildID, schema.Levels, nil, b.Root()); err != nil {
		_ = w.tx.Rollback()
		return "", err
	}
	if err := w.commitTx(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	w.Log.Debug("stored tree", zap.String("build", buildID), zap.Int("nodes", w.count))
	w.count = 0
	return buildID, nil
}

func (w *SQLiteWriter) writeChildren(buildID string, levels []string, parentID *int64, n *tree.Node) error {
	for _, name := range n.ChildNames() {
		child := n.Children[name]
		id := w.nextID
		w.nextID++

		rows, err := child.Rows().ToBytes()
		if err != nil {
			return fmt.Errorf("encode rows of %s: %w", child.Name, err)
		}
		_, err = w.stmtNode.Exec(
			id,
			buildID,
			parentID,
			child.Name,
			levels[child.Depth-1],
			child.Depth,
			child.Length,
			child.Support(),
			rows,
		)
		if err != nil {
			return fmt.Errorf("insert node %s: %w", child.Name, err)
		}

		w.count++
		if w.count%w.batchSize == 0 {
			if err := w.commitTx(); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			if err := w.beginTx(); err != nil {
				return fmt.Errorf("begin batch: %w", err)
			}
		}

		if err := w.writeChildren(buildID, levels, &id, child); err != nil {
			return err
		}
	}
	return nil
}

// Close creates the lookup index and closes the database.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Create indices after bulk load for speed
	if _, err := w.db.Exec(`CREATE INDEX IF NOT EXISTS idx_parent_name ON nodes(build_id, parent_id, name)`); err != nil {
		w.Log.Warn("index creation failed", zap.Error(err))
	}
	return w.db.Close()
}
