package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"nbcopilot/internal/notebook"
)

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(v any) {}

func newNotebookRegistry(t *testing.T) (*Registry, *notebook.Store) {
	t.Helper()
	store := notebook.NewStore(nopBroadcaster{}, zap.NewNop())
	store.Replace([]notebook.Cell{
		{Kind: notebook.KindCode, Content: "import numpy as np"},
		{Kind: notebook.KindMarkdown, Content: "# Results"},
	})
	r := NewRegistry(zap.NewNop())
	RegisterNotebookTools(r, store)
	return r, store
}

func TestNotebookToolRoster(t *testing.T) {
	r, _ := newNotebookRegistry(t)

	want := []string{"clear_outputs", "delete_cell", "get_cell_content", "insert_cell", "notebook_content", "update_cell"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestUpdateCellTool(t *testing.T) {
	r, store := newNotebookRegistry(t)

	res := r.ExecuteJSON(context.Background(), "update_cell", `{"cell_index":0,"new_content":"import pandas as pd"}`)
	if res.Err != nil {
		t.Fatalf("update_cell: %v", res.Err)
	}

	cell, err := store.Cell(0)
	if err != nil || cell.Content != "import pandas as pd" {
		t.Errorf("cell = %+v, %v", cell, err)
	}
}

func TestInsertCellToolShiftWarning(t *testing.T) {
	r, store := newNotebookRegistry(t)

	res := r.ExecuteJSON(context.Background(), "insert_cell", `{"cell_index":0,"content":"## Intro","cell_type":"markdown"}`)
	if res.Err != nil {
		t.Fatalf("insert_cell: %v", res.Err)
	}
	if !strings.Contains(res.Output, "shifted") {
		t.Errorf("output missing stale-index warning: %q", res.Output)
	}
	if got := len(store.Snapshot().Cells); got != 3 {
		t.Errorf("cells = %d, want 3", got)
	}
}

func TestDeleteCellToolOutOfRange(t *testing.T) {
	r, _ := newNotebookRegistry(t)

	res := r.ExecuteJSON(context.Background(), "delete_cell", `{"cell_index":9}`)
	if !errors.Is(res.Err, notebook.ErrIndexOutOfRange) {
		t.Errorf("err = %v, want ErrIndexOutOfRange", res.Err)
	}
	if !strings.Contains(res.Content(), "Error") {
		t.Errorf("Content = %q, want error text", res.Content())
	}
}

func TestGetCellContentTool(t *testing.T) {
	r, _ := newNotebookRegistry(t)

	res := r.ExecuteJSON(context.Background(), "get_cell_content", `{"cell_index":1}`)
	if res.Err != nil {
		t.Fatalf("get_cell_content: %v", res.Err)
	}
	if !strings.Contains(res.Output, "[Cell 1 - markdown]") || !strings.Contains(res.Output, "# Results") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestNotebookContentTool(t *testing.T) {
	r, _ := newNotebookRegistry(t)

	res := r.ExecuteJSON(context.Background(), "notebook_content", `{}`)
	if res.Err != nil {
		t.Fatalf("notebook_content: %v", res.Err)
	}
	if !strings.Contains(res.Output, "[Cell 0 - code]") || !strings.Contains(res.Output, "[Cell 1 - markdown]") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestClearOutputsTool(t *testing.T) {
	r, store := newNotebookRegistry(t)
	store.Replace([]notebook.Cell{
		{Kind: notebook.KindCode, Content: "1+1", Outputs: []any{"2"}},
	})

	res := r.ExecuteJSON(context.Background(), "clear_outputs", `{}`)
	if res.Err != nil {
		t.Fatalf("clear_outputs: %v", res.Err)
	}
	if !strings.Contains(res.Output, "1 code cell") {
		t.Errorf("output = %q", res.Output)
	}
}
