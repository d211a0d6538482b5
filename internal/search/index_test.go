package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nbcopilot/internal/notebook"
)

// stubEngine maps known texts to fixed vectors.
type stubEngine struct {
	vectors map[string][]float32
}

func (e *stubEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEngine) Dimensions() int { return 3 }
func (e *stubEngine) Name() string    { return "stub" }

func doc(contents ...string) notebook.Document {
	cells := make([]notebook.Cell, len(contents))
	for i, c := range contents {
		cells[i] = notebook.Cell{Index: i, Kind: notebook.KindCode, Content: c}
	}
	return notebook.Document{Cells: cells, Revision: 1}
}

func TestSearchBeforeIndex(t *testing.T) {
	idx := NewIndex(&stubEngine{}, 2, zap.NewNop())

	_, err := idx.Search(context.Background(), "anything", 5, 0.5)
	require.ErrorIs(t, err, ErrNotIndexed)

	_, err = idx.KeywordSearch([]string{"x"}, false)
	require.ErrorIs(t, err, ErrNotIndexed)
}

func TestSemanticSearchRanksAndFilters(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"query":         {1, 0, 0},
		"exact match":   {1, 0, 0},
		"partial match": {1, 1, 0},
		"unrelated":     {0, 1, 0},
	}}
	idx := NewIndex(engine, 2, zap.NewNop())
	require.NoError(t, idx.Reindex(context.Background(), doc("exact match", "unrelated", "partial match")))

	results, err := idx.Search(context.Background(), "query", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 0, results[0].CellIndex)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.Equal(t, 2, results[1].CellIndex)
	require.Equal(t, MatchSemantic, results[0].MatchKind)
}

func TestSemanticSearchTopK(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"query": {1, 0, 0},
		"a":     {1, 0, 0},
		"b":     {1, 0, 0},
		"c":     {1, 0, 0},
	}}
	idx := NewIndex(engine, 1, zap.NewNop())
	require.NoError(t, idx.Reindex(context.Background(), doc("a", "b", "c")))

	results, err := idx.Search(context.Background(), "query", 2, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestKeywordSearchScoring(t *testing.T) {
	idx := NewIndex(&stubEngine{}, 1, zap.NewNop())
	require.NoError(t, idx.Reindex(context.Background(), doc(
		"import pandas as pd",
		"df = pd.DataFrame()",
		"print('hello')",
	)))

	// Any-match scores hits over total keywords.
	results, err := idx.KeywordSearch([]string{"pandas", "dataframe"}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.InDelta(t, 0.5, results[0].Score, 1e-9)
	require.InDelta(t, 0.5, results[1].Score, 1e-9)
	require.Equal(t, MatchKeyword, results[0].MatchKind)

	// All-match requires every keyword and scores 1.0.
	results, err = idx.KeywordSearch([]string{"pd", "dataframe"}, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].CellIndex)
	require.Equal(t, 1.0, results[0].Score)
}

func TestKeywordSearchCaseInsensitive(t *testing.T) {
	idx := NewIndex(&stubEngine{}, 1, zap.NewNop())
	require.NoError(t, idx.Reindex(context.Background(), doc("Import Pandas")))

	results, err := idx.KeywordSearch([]string{"PANDAS"}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestMergeKeepsHigherScore(t *testing.T) {
	semantic := []Result{{CellIndex: 2, Score: 0.9, MatchKind: MatchSemantic}}
	keyword := []Result{
		{CellIndex: 2, Score: 0.6, MatchKind: MatchKeyword},
		{CellIndex: 5, Score: 1.0, MatchKind: MatchKeyword},
	}

	merged := Merge(semantic, keyword)
	require.Len(t, merged, 2)
	require.Equal(t, 5, merged[0].CellIndex)
	require.Equal(t, 1.0, merged[0].Score)
	require.Equal(t, 2, merged[1].CellIndex)
	require.Equal(t, 0.9, merged[1].Score)
	require.Equal(t, MatchSemantic, merged[1].MatchKind)
}

func TestFormatResultsEmpty(t *testing.T) {
	require.Equal(t, "No matching cells found.", FormatResults(nil))
}
