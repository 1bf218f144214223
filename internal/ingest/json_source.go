package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/agentic-research/taxotree/internal/tree"
	billy "github.com/go-git/go-billy/v5"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// JSONSource reads row objects out of a JSON document.
// Selector is a JSONPath picking the rows; "$[*]" takes every element of a
// top-level array.
//
// The rows are treated as a table: the columns are the union of all object
// keys, and a row lacking one of them reads it as nil.
type JSONSource struct {
	FS       billy.Filesystem
	Path     string
	Selector string
}

// Stream implements Source.
func (s *JSONSource) Stream(ctx context.Context, levels []string, fn func(tree.Record) error) error {
	rows, err := s.rows()
	if err != nil {
		return err
	}

	cols := make(map[string]int)
	for _, row := range rows {
		for key := range row {
			cols[key] = 0
		}
	}
	if err := checkColumns(s.Path, levels, cols); err != nil {
		return err
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := make(tree.Record, len(levels))
		for _, level := range levels {
			rec[level] = row[level] // nil when absent
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("%s row %d: %w", s.Path, i, err)
		}
	}
	return nil
}

func (s *JSONSource) rows() ([]map[string]any, error) {
	f, err := s.FS.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer func() { _ = f.Close() }() // read-only

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	data, err := oj.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse json %s: %w", s.Path, err)
	}

	selector := s.Selector
	if selector == "" {
		selector = "$[*]"
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}

	results := x.Get(data)
	rows := make([]map[string]any, len(results))
	for i, r := range results {
		obj, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: match %d of %s is %T, not an object", s.Path, i, selector, r)
		}
		rows[i] = obj
	}
	return rows, nil
}
