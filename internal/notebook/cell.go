// Package notebook holds the authoritative in-memory document: an
// ordered list of cells plus a revision counter. The document is never
// mutated directly; every change goes through the propose/accept
// protocol so that subscribers observe the proposal before the store
// commits it.
package notebook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CellKind distinguishes executable cells from narrative ones. The
// values match the Jupyter wire format used by the browser client.
type CellKind string

const (
	KindCode     CellKind = "code"
	KindMarkdown CellKind = "markdown"
)

// Cell is one addressable unit of the document. Index is the 0-based
// ordinal position; it is dense, matches the array position, and is
// renumbered on every structural change.
type Cell struct {
	Index    int            `json:"index"`
	Kind     CellKind       `json:"cell_type"`
	Content  string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Outputs  []any          `json:"outputs,omitempty"`
}

// Document is an immutable snapshot of the store's state.
type Document struct {
	Cells    []Cell `json:"cells"`
	Revision int64  `json:"revision"`
}

// wireCell is the Jupyter JSON shape sent by the front-end: source may
// be a string or a list of line strings.
type wireCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
	Metadata map[string]any  `json:"metadata"`
	Outputs  []any           `json:"outputs"`
}

type wireNotebook struct {
	Cells []wireCell `json:"cells"`
}

// ParseWire decodes a notebook payload from the subscriber wire format
// into cells with dense indices.
func ParseWire(raw []byte) ([]Cell, error) {
	var nb wireNotebook
	if err := json.Unmarshal(raw, &nb); err != nil {
		return nil, fmt.Errorf("invalid notebook payload: %w", err)
	}
	if nb.Cells == nil {
		return nil, fmt.Errorf("invalid notebook payload: missing cells")
	}

	cells := make([]Cell, 0, len(nb.Cells))
	for i, wc := range nb.Cells {
		kind := CellKind(wc.CellType)
		if kind != KindCode {
			kind = KindMarkdown
		}
		cells = append(cells, Cell{
			Index:    i,
			Kind:     kind,
			Content:  decodeSource(wc.Source),
			Metadata: wc.Metadata,
			Outputs:  wc.Outputs,
		})
	}
	return cells, nil
}

// decodeSource accepts both the string and []string encodings Jupyter
// clients produce.
func decodeSource(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	return string(raw)
}

// FormatCells renders cells as indexed blocks for the assistant's
// context window.
func FormatCells(cells []Cell) string {
	var b strings.Builder
	for _, c := range cells {
		fmt.Fprintf(&b, "\n[Cell %d - %s]\n", c.Index, c.Kind)
		content := strings.TrimSpace(c.Content)
		if content == "" {
			b.WriteString("<empty cell>")
		} else {
			b.WriteString(content)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
