// Package rowsvtab exposes the row bitmaps stored with each tree node as a
// SQLite virtual table of (node_id, ordinal) pairs.
package rowsvtab

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"modernc.org/sqlite/vtab"
)

// ModuleName is the name used in CREATE VIRTUAL TABLE ... USING.
const ModuleName = "taxotree_rows"

var (
	once      sync.Once
	singleton *RowsModule
	initErr   error
)

// RowsModule implements vtab.Module. modernc.org/sqlite registers modules
// per driver, so there is one instance per process.
type RowsModule struct {
	mu sync.RWMutex
	// dbs maps the id given to CREATE VIRTUAL TABLE to the database holding
	// the nodes table.
	dbs map[string]*sql.DB
}

// Register registers the module with the SQLite driver on first call and
// returns the shared instance.
func Register() (*RowsModule, error) {
	once.Do(func() {
		singleton = &RowsModule{dbs: make(map[string]*sql.DB)}
		if err := vtab.RegisterModule(nil, ModuleName, singleton); err != nil {
			initErr = fmt.Errorf("rowsvtab: register module: %w", err)
			singleton = nil
		}
	})
	return singleton, initErr
}

// RegisterDB makes db reachable as USING taxotree_rows(id).
func (m *RowsModule) RegisterDB(id string, db *sql.DB) {
	m.mu.Lock()
	m.dbs[id] = db
	m.mu.Unlock()
}

func (m *RowsModule) UnregisterDB(id string) {
	m.mu.Lock()
	delete(m.dbs, id)
	m.mu.Unlock()
}

// Create declares the table. args are module name, database name, table
// name, then the arguments inside USING taxotree_rows(...).
func (m *RowsModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("%s: missing DB ID argument (expected USING %s(id))", ModuleName, ModuleName)
	}
	id := args[3]

	m.mu.RLock()
	db, ok := m.dbs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: unknown DB ID %q", ModuleName, id)
	}

	if err := ctx.Declare("CREATE TABLE x(node_id INTEGER, ordinal INTEGER)"); err != nil {
		return nil, err
	}
	return &rowsTable{db: db}, nil
}

func (m *RowsModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

type rowsTable struct {
	db *sql.DB
}

func (t *rowsTable) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable || c.Column != 0 || c.Op != vtab.OpEQ {
			continue
		}
		c.ArgIndex = 0
		c.Omit = true
		info.IdxNum = 1
		info.EstimatedCost = 1
		info.EstimatedRows = 100
		return nil
	}
	info.IdxNum = 0
	info.EstimatedCost = 1e6
	info.EstimatedRows = 1e6
	return nil
}

func (t *rowsTable) Open() (vtab.Cursor, error) {
	return &rowsCursor{table: t}, nil
}

func (t *rowsTable) Disconnect() error { return nil }
func (t *rowsTable) Destroy() error    { return nil }

type nodeRow struct {
	nodeID int64
	row    uint32
}

type rowsCursor struct {
	table *rowsTable
	rows  []nodeRow
	pos   int
}

func (c *rowsCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.rows = c.rows[:0]
	c.pos = 0

	if idxNum == 1 {
		id, ok := vals[0].(int64)
		if !ok {
			return nil
		}
		return c.loadNode(id)
	}
	return c.loadAll()
}

func (c *rowsCursor) loadNode(id int64) error {
	var blob []byte
	err := c.table.db.QueryRow("SELECT row_bitmap FROM nodes WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("rowsvtab: query node %d: %w", id, err)
	}
	return c.expand(id, blob)
}

// loadAll reads every (id, bitmap) pair before expanding, so the scan's
// connection is released while the cursor is filled.
func (c *rowsCursor) loadAll() error {
	type entry struct {
		id   int64
		blob []byte
	}

	rows, err := c.table.db.Query("SELECT id, row_bitmap FROM nodes ORDER BY id")
	if err != nil {
		return fmt.Errorf("rowsvtab: scan nodes: %w", err)
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.blob); err != nil {
			_ = rows.Close()
			return fmt.Errorf("rowsvtab: scan node: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("rowsvtab: scan nodes: %w", err)
	}
	_ = rows.Close()

	for _, e := range entries {
		if err := c.expand(e.id, e.blob); err != nil {
			return err
		}
	}
	return nil
}

func (c *rowsCursor) expand(id int64, blob []byte) error {
	rb := roaring.New()
	if err := rb.UnmarshalBinary(blob); err != nil {
		return fmt.Errorf("rowsvtab: unmarshal rows of node %d: %w", id, err)
	}
	it := rb.Iterator()
	for it.HasNext() {
		c.rows = append(c.rows, nodeRow{nodeID: id, row: it.Next()})
	}
	return nil
}

func (c *rowsCursor) Next() error {
	c.pos++
	return nil
}

func (c *rowsCursor) Eof() bool {
	return c.pos >= len(c.rows)
}

func (c *rowsCursor) Column(col int) (vtab.Value, error) {
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	switch col {
	case 0:
		return c.rows[c.pos].nodeID, nil
	case 1:
		return int64(c.rows[c.pos].row), nil
	default:
		return nil, nil
	}
}

func (c *rowsCursor) Rowid() (int64, error) {
	return int64(c.pos), nil
}

func (c *rowsCursor) Close() error {
	c.rows = nil
	return nil
}
