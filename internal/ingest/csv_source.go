package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/agentic-research/taxotree/internal/tree"
	billy "github.com/go-git/go-billy/v5"
)

// nullTokens are the cell values read as "no value", the same set pandas
// treats as NA by default.
var nullTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// CSVSource reads a delimited text file with a header row.
type CSVSource struct {
	FS    billy.Filesystem
	Path  string
	Comma rune
}

// Stream implements Source.
func (s *CSVSource) Stream(ctx context.Context, levels []string, fn func(tree.Record) error) error {
	f, err := s.FS.Open(s.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer func() { _ = f.Close() }() // read-only

	r := csv.NewReader(f)
	if s.Comma != 0 {
		r.Comma = s.Comma
	}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		header = nil
	} else if err != nil {
		return fmt.Errorf("read header %s: %w", s.Path, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	if err := checkColumns(s.Path, levels, cols); err != nil {
		return err
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", s.Path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := make(tree.Record, len(levels))
		for _, level := range levels {
			cell := row[cols[level]]
			if _, null := nullTokens[cell]; null {
				rec[level] = nil
				continue
			}
			rec[level] = cell
		}
		if err := fn(rec); err != nil {
			line, _ := r.FieldPos(0)
			return fmt.Errorf("%s line %d: %w", s.Path, line, err)
		}
	}
}
