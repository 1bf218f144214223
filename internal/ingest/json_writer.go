package ingest

import (
	"fmt"
	"io"

	"github.com/agentic-research/taxotree/api"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// WriteJSON writes the exported tree as
// {name: {"length": n, "children": {...}}} with sorted keys, so the same
// tree always produces the same bytes. indent 0 writes a single line.
func WriteJSON(w io.Writer, t api.Tree, indent int) error {
	opts := ojg.DefaultOptions
	opts.Indent = indent
	opts.Sort = true
	if err := oj.Write(w, t.Generic(), &opts); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// ReadJSON parses a tree previously written by WriteJSON.
func ReadJSON(r io.Reader) (api.Tree, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	data, err := oj.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse json: top level is %T, not an object", data)
	}
	return decodeTree(obj)
}

func decodeTree(obj map[string]any) (api.Tree, error) {
	out := make(api.Tree, len(obj))
	for name, v := range obj {
		fields, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("node %q is %T, not an object", name, v)
		}
		var length float64
		switch l := fields["length"].(type) {
		case float64:
			length = l
		case int64:
			length = float64(l)
		default:
			return nil, fmt.Errorf("node %q has length %v", name, fields["length"])
		}
		kids, ok := fields["children"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("node %q has no children object", name)
		}
		children, err := decodeTree(kids)
		if err != nil {
			return nil, err
		}
		out[name] = api.Branch{Length: length, Children: children}
	}
	return out, nil
}
