package ingest

import (
	"io"
	"strconv"
	"strings"

	"github.com/agentic-research/taxotree/internal/tree"
)

// newickSpecial are the characters that force a label to be quoted.
const newickSpecial = "()[]':;, \t\r\n"

// WriteNewick writes the tree in Newick format. The synthetic root becomes
// the unlabeled outermost clade; every other node is written as
// label:length, children before the label, siblings in lexical order.
func WriteNewick(w io.Writer, root *tree.Node) error {
	var sb strings.Builder
	writeClade(&sb, root)
	sb.WriteString(";\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeClade(sb *strings.Builder, n *tree.Node) {
	if !n.IsLeaf() {
		sb.WriteByte('(')
		for i, name := range n.ChildNames() {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeClade(sb, n.Children[name])
		}
		sb.WriteByte(')')
	}
	if n.Depth == 0 {
		return
	}
	sb.WriteString(newickLabel(n.Name))
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatFloat(n.Length, 'f', -1, 64))
}

func newickLabel(name string) string {
	if !strings.ContainsAny(name, newickSpecial) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
