package ingest

import (
	"context"

	"github.com/agentic-research/taxotree/internal/tree"
)

// Source abstracts over the tabular inputs (CSV, JSON, SQLite).
// It hands rows to the builder one at a time.
type Source interface {
	// Stream checks that the input provides every name in levels, then calls
	// fn once per row in input order. Each record carries exactly the level
	// fields; absent values are nil.
	//
	// If a level column is missing, Stream returns an ErrMissingColumns error
	// before fn is ever called.
	Stream(ctx context.Context, levels []string, fn func(tree.Record) error) error
}
