package ingest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestSQLiteWriter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tree.db")
	b := exampleTree(t)

	w, err := NewSQLiteWriter(dbPath)
	require.NoError(t, err)
	first, err := w.Write(b)
	require.NoError(t, err)
	second, err := w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NotEqual(t, first, second)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var nodes int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM nodes WHERE build_id = ?", first).Scan(&nodes))
	assert.Equal(t, 12, nodes)

	var total, distinct int
	require.NoError(t, db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT id) FROM nodes").Scan(&total, &distinct))
	assert.Equal(t, 24, total)
	assert.Equal(t, total, distinct)

	t.Run("top level has no parent", func(t *testing.T) {
		var name, level string
		var length float64
		var support int
		err := db.QueryRow(
			"SELECT name, level, length, support FROM nodes WHERE build_id = ? AND parent_id IS NULL", first,
		).Scan(&name, &level, &length, &support)
		require.NoError(t, err)
		assert.Equal(t, "Animalia", name)
		assert.Equal(t, "kingdom", level)
		assert.Equal(t, 1.0, length)
		assert.Equal(t, 2, support)
	})

	t.Run("children link to parents", func(t *testing.T) {
		rows, err := db.Query(`
			SELECT c.name, c.depth, c.length, c.support FROM nodes c
			JOIN nodes p ON c.parent_id = p.id
			WHERE p.name = 'Chordata' AND c.build_id = ?
			ORDER BY c.name`, first)
		require.NoError(t, err)
		defer func() { _ = rows.Close() }()

		var names []string
		for rows.Next() {
			var name string
			var depth, support int
			var length float64
			require.NoError(t, rows.Scan(&name, &depth, &length, &support))
			names = append(names, name)
			assert.Equal(t, 3, depth)
			assert.Equal(t, 1.0/3, length)
			assert.Equal(t, 1, support)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"Aves", "Mammalia"}, names)
	})

	t.Run("build metadata", func(t *testing.T) {
		var levels, sentinel string
		var records int
		require.NoError(t, db.QueryRow("SELECT levels, sentinel, records FROM builds WHERE id = ?", first).
			Scan(&levels, &sentinel, &records))
		assert.JSONEq(t, `["kingdom","phylum","class","order","family","genus","species"]`, levels)
		assert.Equal(t, "not specified", sentinel)
		assert.Equal(t, 2, records)
	})
}

func TestSQLiteWriter_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tree.db")
	b := exampleTree(t)

	for i := 0; i < 2; i++ {
		w, err := NewSQLiteWriter(dbPath)
		require.NoError(t, err)
		_, err = w.Write(b)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var builds, nodes int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM builds").Scan(&builds))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&nodes))
	assert.Equal(t, 2, builds)
	assert.Equal(t, 24, nodes)
}
