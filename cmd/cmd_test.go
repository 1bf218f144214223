package cmd

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentic-research/taxotree/api"
	"github.com/agentic-research/taxotree/internal/ingest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const taxaCSV = `kingdom,phylum,class,order,family,genus,species
Animalia,Chordata,Mammalia,NaN,NaN,NaN,NaN
Animalia,Chordata,Aves,NaN,NaN,NaN,NaN
`

// run executes the root command with args and returns what it printed.
// Flag state is reset first since cobra commands are package globals.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func readTree(t *testing.T, p string) api.Tree {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	tr, err := ingest.ReadJSON(f)
	require.NoError(t, err)
	return tr
}

func TestBuild_JSON(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "taxa.csv", taxaCSV)
	dst := filepath.Join(dir, "tree.json")

	out, err := run(t, "build", src, dst)
	require.NoError(t, err)
	assert.Contains(t, out, "(json): 12 nodes, 2 leaves from 2 records")

	got := readTree(t, dst)
	chordata := got["Animalia"].Children["Chordata"]
	assert.Equal(t, 0.5, chordata.Length)
	assert.Len(t, chordata.Children, 2)
	assert.Contains(t, chordata.Children["Aves"].Children, "not specified")
}

func TestBuild_Formats(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "taxa.csv", taxaCSV)

	t.Run("newick by flag", func(t *testing.T) {
		dst := filepath.Join(dir, "tree.out")
		_, err := run(t, "build", "--format", "newick", src, dst)
		require.NoError(t, err)

		content, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Contains(t, string(content), ")Animalia:1);")
	})

	t.Run("sqlite by extension", func(t *testing.T) {
		dst := filepath.Join(dir, "tree.db")
		_, err := run(t, "build", "--workers", "2", src, dst)
		require.NoError(t, err)

		db, err := sql.Open("sqlite", dst)
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		var nodes int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&nodes))
		assert.Equal(t, 12, nodes)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := run(t, "build", "--format", "xml", src, filepath.Join(dir, "tree.xml"))
		assert.ErrorContains(t, err, "unknown output format")
	})
}

func TestBuild_ConfigAndOverrides(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "taxa.csv", taxaCSV)
	cfg := writeFile(t, dir, "taxotree.hcl", `
levels          = ["kingdom", "phylum"]
length_constant = 2
sentinel        = "unknown"

output {
  indent = 2
}
`)

	dst := filepath.Join(dir, "tree.json")
	_, err := run(t, "build", "--config", cfg, "--length-constant", "4", src, dst)
	require.NoError(t, err)

	got := readTree(t, dst)
	assert.Equal(t, api.Tree{
		"Animalia": {Length: 4, Children: api.Tree{
			"Chordata": {Length: 2, Children: api.Tree{}},
		}},
	}, got)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("{\n  \"Animalia\"")), string(content))
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "taxa.csv", taxaCSV)

	out, err := run(t, "stats", src)
	require.NoError(t, err)
	assert.Contains(t, out, "LEVEL")
	assert.Regexp(t, `class\s+0\.3333\s+2\s+0`, out)
	assert.Regexp(t, `species\s+0\.1429\s+2\s+2`, out)
	assert.Contains(t, out, "2 records, 12 nodes, 2 leaves")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	t.Run("ok", func(t *testing.T) {
		src := writeFile(t, dir, "taxa.csv", taxaCSV)
		out, err := run(t, "validate", src)
		require.NoError(t, err)
		assert.Contains(t, out, "OK: 2 records across 7 levels")
	})

	t.Run("missing columns", func(t *testing.T) {
		src := writeFile(t, dir, "short.csv", "kingdom,phylum\nAnimalia,Chordata\n")
		_, err := run(t, "validate", src)
		require.Error(t, err)
		assert.True(t, ingest.IsMissingColumns(err))
		assert.ErrorContains(t, err, "invalid source")
	})

	t.Run("custom levels", func(t *testing.T) {
		src := writeFile(t, dir, "short2.csv", "kingdom,phylum\nAnimalia,Chordata\n")
		out, err := run(t, "validate", "--levels", "kingdom,phylum", src)
		require.NoError(t, err)
		assert.Contains(t, out, "across 2 levels")
	})

	t.Run("unsupported", func(t *testing.T) {
		src := writeFile(t, dir, "taxa.txt", taxaCSV)
		_, err := run(t, "validate", src)
		assert.ErrorIs(t, err, ingest.ErrUnsupported)
	})
}

func TestRows(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "taxa.csv", taxaCSV)
	dst := filepath.Join(dir, "tree.db")
	_, err := run(t, "build", src, dst)
	require.NoError(t, err)

	out, err := run(t, "rows", dst, "Animalia", "Chordata", "Aves")
	require.NoError(t, err)
	assert.Contains(t, out, "1\n1 records\n")

	_, err = run(t, "rows", dst, "Plantae")
	assert.ErrorIs(t, err, ingest.ErrNodeNotFound)

	_, err = run(t, "rows", "--build", "nope", dst, "Animalia")
	assert.ErrorIs(t, err, ingest.ErrNodeNotFound)
}

func TestBuild_FailureKeepsOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "short.csv", "kingdom,phylum\nAnimalia,Chordata\n")

	for _, name := range []string{"tree.json", "tree.nwk", "tree.db"} {
		t.Run(name, func(t *testing.T) {
			dst := writeFile(t, dir, name, "previous output")

			_, err := run(t, "build", src, dst)
			require.Error(t, err)
			assert.True(t, ingest.IsMissingColumns(err))

			content, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, "previous output", string(content))

			for _, pattern := range []string{".taxotree-*", "*.tmp-*"} {
				matches, err := filepath.Glob(filepath.Join(dir, pattern))
				require.NoError(t, err)
				assert.Empty(t, matches, pattern)
			}
		})
	}
}

func TestBuild_OutputInsideSourceDir(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(data, 0o755))
	writeFile(t, data, "taxa.csv", taxaCSV)
	dst := filepath.Join(data, "tree.json")

	for range 2 {
		out, err := run(t, "build", data, dst)
		require.NoError(t, err)
		assert.Contains(t, out, "from 2 records")
	}
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestBuild_SQLiteKeepsEarlierBuilds(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.csv", taxaCSV)
	second := writeFile(t, dir, "second.csv", taxaCSV+"Plantae,Tracheophyta,,,,,\n")
	dst := filepath.Join(dir, "tree.db")

	_, err := run(t, "build", first, dst)
	require.NoError(t, err)
	_, err = run(t, "build", second, dst)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", dst)
	require.NoError(t, err)
	var firstID string
	require.NoError(t, db.QueryRow(`SELECT id FROM builds ORDER BY created LIMIT 1`).Scan(&firstID))
	var builds int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM builds`).Scan(&builds))
	require.NoError(t, db.Close())
	assert.Equal(t, 2, builds)

	out, err := run(t, "rows", dst, "Plantae")
	require.NoError(t, err)
	assert.Contains(t, out, "2\n1 records\n")

	_, err = run(t, "rows", "--build", firstID, dst, "Plantae")
	assert.ErrorIs(t, err, ingest.ErrNodeNotFound)

	out, err = run(t, "rows", "--build", firstID, dst, "Animalia")
	require.NoError(t, err)
	assert.Contains(t, out, "0\n1\n2 records\n")
}
