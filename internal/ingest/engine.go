package ingest

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/agentic-research/taxotree/api"
	"github.com/agentic-research/taxotree/internal/tree"
	billy "github.com/go-git/go-billy/v5"
	"go.uber.org/zap"
)

// Engine drives the ingestion process: it finds the sources under a path
// and feeds their rows to a tree builder.
type Engine struct {
	Schema api.Schema
	FS     billy.Filesystem
	Log    *zap.Logger

	Table     string // SQLite table holding the rows
	Selector  string // JSONPath to the row objects of a JSON document
	Delimiter rune   // CSV separator; 0 picks by extension
	Workers   int    // > 1 builds top-level subtrees concurrently

	// Exclude lists paths a directory walk never reads, typically the
	// output of the same build. Dot-files are always skipped.
	Exclude []string
}

func NewEngine(schema api.Schema, fsys billy.Filesystem) *Engine {
	return &Engine{
		Schema:   schema,
		FS:       fsys,
		Log:      zap.NewNop(),
		Table:    "taxonomy",
		Selector: "$[*]",
	}
}

// Ingest streams every record found at p (a file, or a directory walked
// recursively) into fn. Files with unknown extensions, dot-files and
// excluded paths inside a directory are skipped; a single file with an
// unknown extension is an error.
func (e *Engine) Ingest(ctx context.Context, p string, fn func(tree.Record) error) error {
	info, err := e.FS.Stat(p)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		src, err := e.source(p)
		if err != nil {
			return err
		}
		return e.stream(ctx, p, src, fn)
	}

	return e.walk(ctx, p, fn)
}

func (e *Engine) walk(ctx context.Context, dir string, fn func(tree.Record) error) error {
	entries, err := e.FS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	slices.SortFunc(entries, func(a, b os.FileInfo) int { return strings.Compare(a.Name(), b.Name()) })

	for _, d := range entries {
		p := e.FS.Join(dir, d.Name())
		if strings.HasPrefix(d.Name(), ".") || e.excluded(p) {
			e.Log.Debug("skipping excluded path", zap.String("path", p))
			continue
		}
		if d.IsDir() {
			if err := e.walk(ctx, p, fn); err != nil {
				return err
			}
			continue
		}
		src, err := e.source(p)
		if err != nil {
			e.Log.Debug("skipping file", zap.String("path", p))
			continue
		}
		if err := e.stream(ctx, p, src, fn); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) excluded(p string) bool {
	p = filepath.Clean(p)
	for _, x := range e.Exclude {
		if filepath.Clean(x) == p {
			return true
		}
	}
	return false
}

func (e *Engine) stream(ctx context.Context, p string, src Source, fn func(tree.Record) error) error {
	start := time.Now()
	n := 0
	err := src.Stream(ctx, e.Schema.Levels, func(rec tree.Record) error {
		n++
		return fn(rec)
	})
	if err != nil {
		return err
	}
	e.Log.Info("ingested source",
		zap.String("path", p),
		zap.Int("records", n),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// source picks the reader for a file by extension.
func (e *Engine) source(p string) (Source, error) {
	switch strings.ToLower(path.Ext(p)) {
	case ".csv":
		return &CSVSource{FS: e.FS, Path: p, Comma: e.comma(',')}, nil
	case ".tsv", ".tab":
		return &CSVSource{FS: e.FS, Path: p, Comma: e.comma('\t')}, nil
	case ".json":
		return &JSONSource{FS: e.FS, Path: p, Selector: e.Selector}, nil
	case ".db", ".sqlite", ".sqlite3":
		return &SQLiteSource{Path: e.osPath(p), Table: e.Table}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, p)
	}
}

func (e *Engine) comma(fallback rune) rune {
	if e.Delimiter != 0 {
		return e.Delimiter
	}
	return fallback
}

// osPath maps a path inside e.FS to the host path SQLite needs.
func (e *Engine) osPath(p string) string {
	return filepath.Join(e.FS.Root(), filepath.FromSlash(p))
}

// Build ingests p into a new sealed tree. With Workers > 1 the records are
// collected first and the top-level subtrees are built concurrently;
// otherwise each record is inserted as it is read.
func (e *Engine) Build(ctx context.Context, p string) (*tree.Builder, error) {
	start := time.Now()

	var (
		b   *tree.Builder
		err error
	)
	if e.Workers > 1 {
		var records []tree.Record
		err = e.Ingest(ctx, p, func(rec tree.Record) error {
			records = append(records, rec)
			return nil
		})
		if err != nil {
			return nil, err
		}
		b, err = tree.BuildSharded(ctx, e.Schema, records, e.Workers)
		if err != nil {
			return nil, err
		}
	} else {
		b, err = tree.New(e.Schema)
		if err != nil {
			return nil, err
		}
		if err := e.Ingest(ctx, p, b.Insert); err != nil {
			return nil, err
		}
		b.Seal()
	}

	st := b.Stats()
	e.Log.Info("built tree",
		zap.String("source", p),
		zap.Int("records", st.Records),
		zap.Int("nodes", st.Nodes),
		zap.Int("leaves", st.Leaves),
		zap.Int("workers", e.Workers),
		zap.Duration("took", time.Since(start)),
	)
	return b, nil
}
