package api

// DefaultLevels is the taxonomic rank sequence, broadest first.
var DefaultLevels = []string{"kingdom", "phylum", "class", "order", "family", "genus", "species"}

const (
	// DefaultLengthConstant scales every branch length.
	DefaultLengthConstant = 1.0
	// DefaultSentinel labels levels with no usable value.
	DefaultSentinel = "not specified"
)

// Schema is the fixed level hierarchy shared by every insertion of a build.
type Schema struct {
	// Levels are the ordered level names, broadest (index 0) to narrowest.
	Levels []string `json:"levels"`
	// LengthConstant is C in length = C / depth.
	LengthConstant float64 `json:"length_constant"`
	// Sentinel replaces missing, empty and "nan" values.
	Sentinel string `json:"sentinel"`
}

// DefaultSchema returns the seven-rank taxonomy schema.
func DefaultSchema() Schema {
	levels := make([]string, len(DefaultLevels))
	copy(levels, DefaultLevels)
	return Schema{
		Levels:         levels,
		LengthConstant: DefaultLengthConstant,
		Sentinel:       DefaultSentinel,
	}
}

// Equal reports whether two schemas describe the same hierarchy.
func (s Schema) Equal(o Schema) bool {
	if len(s.Levels) != len(o.Levels) {
		return false
	}
	for i := range s.Levels {
		if s.Levels[i] != o.Levels[i] {
			return false
		}
	}
	return s.LengthConstant == o.LengthConstant && s.Sentinel == o.Sentinel
}

// Tree is the exported artifact: top-level names mapped to their branches.
// The synthetic root is never part of it.
type Tree map[string]Branch

// Branch is one exported node.
type Branch struct {
	// Length is the edge weight of the node, fixed by its depth.
	Length float64 `json:"length"`
	// Children is never nil; leaves serialize as {}.
	Children Tree `json:"children"`
}

// Generic converts the tree into plain maps for encoders that do not
// reflect over struct tags.
func (t Tree) Generic() map[string]any {
	out := make(map[string]any, len(t))
	for name, b := range t {
		out[name] = map[string]any{
			"length":   b.Length,
			"children": b.Children.Generic(),
		}
	}
	return out
}
