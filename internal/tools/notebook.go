package tools

import (
	"context"
	"fmt"

	"nbcopilot/internal/notebook"
)

// RegisterNotebookTools wires the cell-editing toolset against a
// concrete store. Every mutation goes through the store's propose
// path so subscribers see the change before it lands.
func RegisterNotebookTools(r *Registry, store *notebook.Store) {
	r.MustRegister(NewUpdateCellTool(store))
	r.MustRegister(NewInsertCellTool(store))
	r.MustRegister(NewDeleteCellTool(store))
	r.MustRegister(NewGetCellContentTool(store))
	r.MustRegister(NewNotebookContentTool(store))
	r.MustRegister(NewClearOutputsTool(store))
}

// NewUpdateCellTool replaces the content (and optionally kind) of one cell.
func NewUpdateCellTool(store *notebook.Store) *Tool {
	return &Tool{
		Name:        "update_cell",
		Description: "Replace the content of an existing notebook cell at the given index. Optionally change the cell type.",
		Schema: Schema{
			Required: []string{"cell_index", "new_content"},
			Properties: map[string]Property{
				"cell_index":  {Type: "integer", Description: "Zero-based index of the cell to update"},
				"new_content": {Type: "string", Description: "Full replacement content for the cell"},
				"cell_type":   {Type: "string", Description: "New cell type", Enum: []any{"code", "markdown"}},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			index, err := IntArg(args, "cell_index")
			if err != nil {
				return "", err
			}
			content, err := StringArg(args, "new_content")
			if err != nil {
				return "", err
			}
			kind, err := OptionalStringArg(args, "cell_type", "")
			if err != nil {
				return "", err
			}

			res, err := store.Propose(notebook.EditProposal{
				Kind:       notebook.ChangeUpdate,
				Index:      index,
				NewContent: content,
				CellKind:   notebook.CellKind(kind),
			})
			if err != nil {
				return "", err
			}
			return res.Message, nil
		},
	}
}

// NewInsertCellTool inserts a new cell at the given index.
func NewInsertCellTool(store *notebook.Store) *Tool {
	return &Tool{
		Name:        "insert_cell",
		Description: "Insert a new cell at the given index. Existing cells at or after that index shift down by one.",
		Schema: Schema{
			Required: []string{"cell_index", "content"},
			Properties: map[string]Property{
				"cell_index": {Type: "integer", Description: "Zero-based index for the new cell. Use the current cell count to append at the end."},
				"content":    {Type: "string", Description: "Content of the new cell"},
				"cell_type":  {Type: "string", Description: "Cell type", Default: "markdown", Enum: []any{"code", "markdown"}},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			index, err := IntArg(args, "cell_index")
			if err != nil {
				return "", err
			}
			content, err := StringArg(args, "content")
			if err != nil {
				return "", err
			}
			kind, err := OptionalStringArg(args, "cell_type", string(notebook.KindMarkdown))
			if err != nil {
				return "", err
			}

			res, err := store.Propose(notebook.EditProposal{
				Kind:       notebook.ChangeInsert,
				Index:      index,
				NewContent: content,
				CellKind:   notebook.CellKind(kind),
			})
			if err != nil {
				return "", err
			}
			return res.Message, nil
		},
	}
}

// NewDeleteCellTool removes the cell at the given index.
func NewDeleteCellTool(store *notebook.Store) *Tool {
	return &Tool{
		Name:        "delete_cell",
		Description: "Delete the notebook cell at the given index. Cells after it shift up by one.",
		Schema: Schema{
			Required: []string{"cell_index"},
			Properties: map[string]Property{
				"cell_index": {Type: "integer", Description: "Zero-based index of the cell to delete"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			index, err := IntArg(args, "cell_index")
			if err != nil {
				return "", err
			}

			res, err := store.Propose(notebook.EditProposal{
				Kind:  notebook.ChangeDelete,
				Index: index,
			})
			if err != nil {
				return "", err
			}
			return res.Message, nil
		},
	}
}

// NewGetCellContentTool reads one cell.
func NewGetCellContentTool(store *notebook.Store) *Tool {
	return &Tool{
		Name:        "get_cell_content",
		Description: "Read the content and type of a single notebook cell.",
		Schema: Schema{
			Required: []string{"cell_index"},
			Properties: map[string]Property{
				"cell_index": {Type: "integer", Description: "Zero-based index of the cell to read"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			index, err := IntArg(args, "cell_index")
			if err != nil {
				return "", err
			}

			cell, err := store.Cell(index)
			if err != nil {
				return "", err
			}
			content := cell.Content
			if content == "" {
				content = "<empty cell>"
			}
			return fmt.Sprintf("[Cell %d - %s]\n%s", cell.Index, cell.Kind, content), nil
		},
	}
}

// NewNotebookContentTool renders the whole document.
func NewNotebookContentTool(store *notebook.Store) *Tool {
	return &Tool{
		Name:        "notebook_content",
		Description: "Read the entire notebook as indexed cell blocks. Use this to refresh your view after structural edits.",
		Schema: Schema{
			Required:   []string{},
			Properties: map[string]Property{},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return store.FormatContent()
		},
	}
}

// NewClearOutputsTool strips execution outputs from all code cells.
func NewClearOutputsTool(store *notebook.Store) *Tool {
	return &Tool{
		Name:        "clear_outputs",
		Description: "Clear execution outputs from every code cell in the notebook.",
		Schema: Schema{
			Required:   []string{},
			Properties: map[string]Property{},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			cleared, err := store.ClearOutputs()
			if err != nil {
				return "", err
			}
			if cleared == 0 {
				return "No code cells had outputs to clear.", nil
			}
			return fmt.Sprintf("Cleared outputs from %d code cell(s).", cleared), nil
		},
	}
}
