package tree

import (
	"slices"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/taxotree/api"
)

// Node is one label at one level of the hierarchy.
// A parent exclusively owns its children; there are no back references.
type Node struct {
	Name     string
	Length   float64          // Edge weight, fixed at creation from Depth
	Depth    int              // 1 for level 0; the synthetic root is 0
	Children map[string]*Node // Keyed by child name

	// rows holds the ordinals of every record whose path crosses this node.
	rows *roaring.Bitmap
}

func newNode(name string, length float64, depth int) *Node {
	return &Node{
		Name:     name,
		Length:   length,
		Depth:    depth,
		Children: make(map[string]*Node),
		rows:     roaring.New(),
	}
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Support returns how many records pass through the node.
func (n *Node) Support() uint64 {
	return n.rows.GetCardinality()
}

// Rows returns a copy of the record ordinals that pass through the node.
func (n *Node) Rows() *roaring.Bitmap {
	return n.rows.Clone()
}

// ChildNames returns the child labels in lexical order.
func (n *Node) ChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// WalkFunc is called for every node below the root. path holds the labels
// from level 0 down to and including n.
type WalkFunc func(path []string, n *Node) error

// Walk visits the subtree depth-first, parents before children,
// siblings in lexical order. The receiver itself is not visited.
func (n *Node) Walk(fn WalkFunc) error {
	return n.walk(nil, fn)
}

func (n *Node) walk(prefix []string, fn WalkFunc) error {
	for _, name := range n.ChildNames() {
		child := n.Children[name]
		path := append(slices.Clip(prefix), name)
		if err := fn(path, child); err != nil {
			return err
		}
		if err := child.walk(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) export() api.Tree {
	out := make(api.Tree, len(n.Children))
	for name, child := range n.Children {
		out[name] = api.Branch{
			Length:   child.Length,
			Children: child.export(),
		}
	}
	return out
}

// merge folds src into n by name at every depth. Nodes missing from n are
// deep-copied so the two trees never share structure.
func (n *Node) merge(src *Node, offset uint32) {
	n.rows.Or(shift(src.rows, offset))
	for name, sc := range src.Children {
		dc, ok := n.Children[name]
		if !ok {
			n.Children[name] = sc.clone(offset)
			continue
		}
		dc.merge(sc, offset)
	}
}

func (n *Node) clone(offset uint32) *Node {
	c := &Node{
		Name:     n.Name,
		Length:   n.Length,
		Depth:    n.Depth,
		Children: make(map[string]*Node, len(n.Children)),
		rows:     shift(n.rows, offset),
	}
	for name, child := range n.Children {
		c.Children[name] = child.clone(offset)
	}
	return c
}

func shift(bm *roaring.Bitmap, offset uint32) *roaring.Bitmap {
	if offset == 0 {
		return bm.Clone()
	}
	return roaring.AddOffset(bm, offset)
}
