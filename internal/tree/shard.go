package tree

import (
	"context"
	"fmt"

	"github.com/agentic-research/taxotree/api"
	"golang.org/x/sync/errgroup"
)

// BuildSharded produces the same tree as Build, building each top-level
// subtree on its own goroutine. Records are partitioned by their normalized
// level-0 label, so shards share no mutable state until the final merge.
// Record ordinals stay those of the input slice.
// workers <= 0 means one goroutine per shard.
func BuildSharded(ctx context.Context, schema api.Schema, records []Record, workers int) (*Builder, error) {
	b, err := New(schema)
	if err != nil {
		return nil, err
	}

	top := b.schema.Levels[0]
	shards := make(map[string][]uint32)
	var order []string
	for i, rec := range records {
		row := uint32(i)
		if err := b.check(row, rec); err != nil {
			return nil, err
		}
		key := Normalize(rec[top], b.schema.Sentinel)
		if _, ok := shards[key]; !ok {
			order = append(order, key)
		}
		shards[key] = append(shards[key], row)
	}

	built := make([]*Builder, len(order))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, key := range order {
		g.Go(func() error {
			sb := &Builder{schema: b.schema, root: newNode("", 0, 0)}
			for _, row := range shards[key] {
				if err := gctx.Err(); err != nil {
					return fmt.Errorf("shard %q: %w", key, err)
				}
				sb.insert(row, records[row])
			}
			built[i] = sb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, sb := range built {
		b.root.merge(sb.root, 0)
	}
	b.count = uint32(len(records))
	b.Seal()
	return b, nil
}
