package notebook

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseWire(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Cell
		wantErr bool
	}{
		{
			name:    "string source",
			payload: `{"cells":[{"cell_type":"code","source":"print(1)\n"}]}`,
			want:    []Cell{{Index: 0, Kind: KindCode, Content: "print(1)\n"}},
		},
		{
			name:    "list source joins without separator",
			payload: `{"cells":[{"cell_type":"markdown","source":["# Title\n","body"]}]}`,
			want:    []Cell{{Index: 0, Kind: KindMarkdown, Content: "# Title\nbody"}},
		},
		{
			name:    "unknown cell type treated as markdown",
			payload: `{"cells":[{"cell_type":"raw","source":"x"}]}`,
			want:    []Cell{{Index: 0, Kind: KindMarkdown, Content: "x"}},
		},
		{
			name:    "indices are dense",
			payload: `{"cells":[{"cell_type":"code","source":"a"},{"cell_type":"code","source":"b"},{"cell_type":"code","source":"c"}]}`,
			want: []Cell{
				{Index: 0, Kind: KindCode, Content: "a"},
				{Index: 1, Kind: KindCode, Content: "b"},
				{Index: 2, Kind: KindCode, Content: "c"},
			},
		},
		{
			name:    "empty cells list",
			payload: `{"cells":[]}`,
			want:    []Cell{},
		},
		{
			name:    "missing cells field",
			payload: `{}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWire([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("cells mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatCells(t *testing.T) {
	cells := []Cell{
		{Index: 0, Kind: KindCode, Content: "import os"},
		{Index: 1, Kind: KindMarkdown, Content: "   "},
	}

	got := FormatCells(cells)
	want := "\n[Cell 0 - code]\nimport os\n\n[Cell 1 - markdown]\n<empty cell>"
	if got != want {
		t.Errorf("FormatCells = %q, want %q", got, want)
	}
}
