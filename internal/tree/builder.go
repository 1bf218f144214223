// Package tree builds the deduplicated, depth-weighted taxonomy tree.
//
// Records are inserted one at a time. Each record walks the fixed level
// schema from a synthetic root, creating a child the first time a
// (parent, label) pair is seen and reusing it afterwards. A node's length is
// LengthConstant / depth, so every node at the same level carries the same
// weight no matter which branch it sits on.
package tree

import (
	"fmt"
	"iter"
	"math"
	"strings"

	"github.com/agentic-research/taxotree/api"
)

// Record is one input row: level name to raw value.
// Fields not named by the schema are ignored.
type Record map[string]any

// Builder owns the tree under construction. It is not safe for concurrent use.
type Builder struct {
	schema api.Schema
	root   *Node
	count  uint32 // records inserted so far; also the next record ordinal
	sealed bool
}

// New validates schema, fills in defaults and returns an empty builder.
func New(schema api.Schema) (*Builder, error) {
	s, err := resolveSchema(schema)
	if err != nil {
		return nil, err
	}
	return &Builder{
		schema: s,
		root:   newNode("", 0, 0),
	}, nil
}

func resolveSchema(schema api.Schema) (api.Schema, error) {
	if len(schema.Levels) == 0 {
		return api.Schema{}, fmt.Errorf("%w: no levels", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(schema.Levels))
	levels := make([]string, len(schema.Levels))
	for i, level := range schema.Levels {
		if strings.TrimSpace(level) == "" {
			return api.Schema{}, fmt.Errorf("%w: level %d has no name", ErrInvalidSchema, i)
		}
		if _, dup := seen[level]; dup {
			return api.Schema{}, fmt.Errorf("%w: duplicate level %q", ErrInvalidSchema, level)
		}
		seen[level] = struct{}{}
		levels[i] = level
	}

	c := schema.LengthConstant
	switch {
	case c == 0:
		c = api.DefaultLengthConstant
	case math.IsNaN(c) || math.IsInf(c, 0) || c < 0:
		return api.Schema{}, fmt.Errorf("%w: length constant %v", ErrInvalidSchema, c)
	}

	sentinel := schema.Sentinel
	if sentinel == "" {
		sentinel = api.DefaultSentinel
	}

	return api.Schema{Levels: levels, LengthConstant: c, Sentinel: sentinel}, nil
}

// Schema returns the resolved schema the builder uses.
func (b *Builder) Schema() api.Schema {
	return b.schema
}

// Root returns the synthetic root. Its children are the level-0 labels.
func (b *Builder) Root() *Node {
	return b.root
}

// Len returns the number of records inserted.
func (b *Builder) Len() int {
	return int(b.count)
}

// LengthAt returns the branch length for the 0-based level index.
func (b *Builder) LengthAt(level int) float64 {
	return b.schema.LengthConstant / float64(level+1)
}

// Seal freezes the tree. Later inserts and merges fail with ErrSealed.
func (b *Builder) Seal() {
	b.sealed = true
}

// Sealed reports whether Seal has been called.
func (b *Builder) Sealed() bool {
	return b.sealed
}

// Insert adds one record. A record missing any level field is rejected
// whole with ErrSchemaMismatch; nothing is inserted for it.
func (b *Builder) Insert(rec Record) error {
	if b.sealed {
		return ErrSealed
	}
	if err := b.check(b.count, rec); err != nil {
		return err
	}
	b.insert(b.count, rec)
	b.count++
	return nil
}

func (b *Builder) check(row uint32, rec Record) error {
	var missing []string
	for _, level := range b.schema.Levels {
		if _, ok := rec[level]; !ok {
			missing = append(missing, level)
		}
	}
	if len(missing) > 0 {
		return ErrSchemaMismatch.New(row, strings.Join(missing, ", "))
	}
	return nil
}

func (b *Builder) insert(row uint32, rec Record) {
	cur := b.root
	cur.rows.Add(row)
	for i, level := range b.schema.Levels {
		name := Normalize(rec[level], b.schema.Sentinel)
		child, ok := cur.Children[name]
		if !ok {
			child = newNode(name, b.LengthAt(i), i+1)
			cur.Children[name] = child
		}
		child.rows.Add(row)
		cur = child
	}
}

// Export returns the root's children with their full subtrees.
// The root itself is not included.
func (b *Builder) Export() api.Tree {
	return b.root.export()
}

// Merge folds other into b by name at every depth, as though other's records
// had been inserted after b's. other is left untouched.
func (b *Builder) Merge(other *Builder) error {
	if b.sealed {
		return ErrSealed
	}
	if !b.schema.Equal(other.schema) {
		return ErrSchemaConflict
	}
	b.root.merge(other.root, b.count)
	b.count += other.count
	return nil
}

// Build folds records into a fresh builder and seals it.
// It stops at the first record that fails to insert.
func Build(schema api.Schema, records iter.Seq[Record]) (*Builder, error) {
	b, err := New(schema)
	if err != nil {
		return nil, err
	}
	for rec := range records {
		if err := b.Insert(rec); err != nil {
			return nil, err
		}
	}
	b.Seal()
	return b, nil
}
