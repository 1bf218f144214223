package tree

import (
	"context"
	"fmt"
	"testing"

	"github.com/agentic-research/taxotree/api"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manyRecords(n int) []Record {
	kingdoms := []any{"Animalia", "Plantae", "Fungi", nil, "Bacteria"}
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, row(
			kingdoms[i%len(kingdoms)],
			fmt.Sprintf("phylum-%d", i%7),
			fmt.Sprintf("class-%d", i%11),
			fmt.Sprintf("order-%d", i%13),
			"NaN",
			fmt.Sprintf("genus-%d", i%17),
			fmt.Sprintf("species-%d", i),
		))
	}
	return records
}

func TestBuildSharded_MatchesSequential(t *testing.T) {
	records := manyRecords(500)
	seq := mustBuild(t, api.DefaultSchema(), records)

	for _, workers := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			par, err := BuildSharded(context.Background(), api.DefaultSchema(), records, workers)
			require.NoError(t, err)
			assert.True(t, par.Sealed())

			if diff := cmp.Diff(seq.Export(), par.Export()); diff != "" {
				t.Fatalf("sharded tree differs (-seq +par):\n%s", diff)
			}
			assert.Equal(t, seq.Stats(), par.Stats())
			assert.Equal(t, seq.Len(), par.Len())

			// Row ordinals survive sharding.
			require.NoError(t, seq.Root().Walk(func(path []string, n *Node) error {
				cur := par.Root()
				for _, name := range path {
					cur = cur.Children[name]
				}
				assert.True(t, n.Rows().Equals(cur.Rows()), "rows differ at %v", path)
				return nil
			}))
		})
	}
}

func TestBuildSharded_Empty(t *testing.T) {
	b, err := BuildSharded(context.Background(), api.DefaultSchema(), nil, 2)
	require.NoError(t, err)
	assert.Empty(t, b.Export())
	assert.Equal(t, 0, b.Len())
}

func TestBuildSharded_SchemaMismatch(t *testing.T) {
	records := manyRecords(5)
	delete(records[3], "genus")

	_, err := BuildSharded(context.Background(), api.DefaultSchema(), records, 2)
	require.Error(t, err)
	assert.True(t, ErrSchemaMismatch.Is(err))
	assert.Contains(t, err.Error(), "record 3")
}

func TestBuildSharded_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildSharded(ctx, api.DefaultSchema(), manyRecords(50), 2)
	assert.ErrorIs(t, err, context.Canceled)
}
