package tree

// LevelStats summarizes one level of the tree.
type LevelStats struct {
	Level    string
	Length   float64
	Nodes    int // distinct (parent, label) nodes at this level
	Sentinel int // how many of those carry the sentinel label
}

// Stats summarizes a built tree.
type Stats struct {
	Records int
	Nodes   int
	Leaves  int
	Levels  []LevelStats
}

// Stats walks the tree and counts nodes per level.
func (b *Builder) Stats() Stats {
	st := Stats{
		Records: b.Len(),
		Levels:  make([]LevelStats, len(b.schema.Levels)),
	}
	for i, level := range b.schema.Levels {
		st.Levels[i] = LevelStats{Level: level, Length: b.LengthAt(i)}
	}
	_ = b.root.Walk(func(_ []string, n *Node) error {
		ls := &st.Levels[n.Depth-1]
		ls.Nodes++
		if n.Name == b.schema.Sentinel {
			ls.Sentinel++
		}
		st.Nodes++
		if n.IsLeaf() {
			st.Leaves++
		}
		return nil
	})
	return st
}
