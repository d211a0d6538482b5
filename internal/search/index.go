// Package search builds and queries the notebook content index:
// semantic search over cell embeddings plus substring keyword search,
// with score-based de-duplication when the two are presented together.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nbcopilot/internal/embedding"
	"nbcopilot/internal/notebook"
)

// ErrNotIndexed is returned when searching before any document has
// been indexed. This is a contract violation by the caller, not a
// runtime condition, so it propagates instead of being swallowed.
var ErrNotIndexed = errors.New("no notebook indexed")

// MatchKind labels which index produced a result.
type MatchKind string

const (
	MatchSemantic MatchKind = "semantic"
	MatchKeyword  MatchKind = "keyword"
)

// Result is one scored hit. Score is in [0,1]. Results live only for
// the duration of a query.
type Result struct {
	CellIndex int
	Score     float64
	MatchKind MatchKind
	Cell      notebook.Cell
}

// Index holds the embeddings and cell snapshot for one document
// revision. Reindex replaces everything in one batched pass.
type Index struct {
	mu      sync.RWMutex
	cells   []notebook.Cell
	vectors [][]float32

	engine  embedding.Engine
	workers int
	logger  *zap.Logger
}

// NewIndex creates an empty index. workers bounds the embedding worker
// pool; values below 1 are clamped to 1.
func NewIndex(engine embedding.Engine, workers int, logger *zap.Logger) *Index {
	if workers < 1 {
		workers = 1
	}
	return &Index{
		engine:  engine,
		workers: workers,
		logger:  logger.Named("search"),
	}
}

// Reindex rebuilds embeddings for every cell's flattened content in
// one batched pass. The embedding computation is CPU/IO heavy, so the
// batch is split across a bounded worker pool rather than run on the
// caller's goroutine serially.
func (idx *Index) Reindex(ctx context.Context, doc notebook.Document) error {
	contents := make([]string, len(doc.Cells))
	for i, cell := range doc.Cells {
		contents[i] = cell.Content
	}

	vectors := make([][]float32, len(contents))
	if len(contents) > 0 {
		chunk := (len(contents) + idx.workers - 1) / idx.workers

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(idx.workers)
		for start := 0; start < len(contents); start += chunk {
			end := min(start+chunk, len(contents))
			g.Go(func() error {
				batch, err := idx.engine.EmbedBatch(gctx, contents[start:end])
				if err != nil {
					return fmt.Errorf("embedding cells %d..%d: %w", start, end-1, err)
				}
				copy(vectors[start:end], batch)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	idx.mu.Lock()
	idx.cells = doc.Cells
	idx.vectors = vectors
	idx.mu.Unlock()

	idx.logger.Info("reindexed notebook",
		zap.Int("cells", len(doc.Cells)),
		zap.Int64("revision", doc.Revision),
		zap.String("engine", idx.engine.Name()))
	return nil
}

// Search performs semantic search: cosine similarity between the query
// embedding and every cell, filtered by minScore, sorted descending,
// truncated to topK.
func (idx *Index) Search(ctx context.Context, query string, topK int, minScore float64) ([]Result, error) {
	idx.mu.RLock()
	cells, vectors := idx.cells, idx.vectors
	idx.mu.RUnlock()

	if len(cells) == 0 {
		return nil, ErrNotIndexed
	}
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := idx.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results := make([]Result, 0, len(cells))
	for i, vec := range vectors {
		score, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}
		if score >= minScore {
			results = append(results, Result{CellIndex: cells[i].Index, Score: score, MatchKind: MatchSemantic, Cell: cells[i]})
		}
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// KeywordSearch performs case-insensitive substring search. With
// matchAll, only cells containing every keyword qualify and score 1.0;
// otherwise the score is matching-keyword count over total keywords.
func (idx *Index) KeywordSearch(keywords []string, matchAll bool) ([]Result, error) {
	idx.mu.RLock()
	cells := idx.cells
	idx.mu.RUnlock()

	if len(cells) == 0 {
		return nil, ErrNotIndexed
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	var results []Result
	for _, cell := range cells {
		content := strings.ToLower(cell.Content)
		matches := 0
		for _, kw := range lowered {
			if strings.Contains(content, kw) {
				matches++
			}
		}

		if matchAll {
			if matches == len(lowered) && len(lowered) > 0 {
				results = append(results, Result{CellIndex: cell.Index, Score: 1.0, MatchKind: MatchKeyword, Cell: cell})
			}
		} else if matches > 0 {
			score := float64(matches) / float64(len(lowered))
			results = append(results, Result{CellIndex: cell.Index, Score: score, MatchKind: MatchKeyword, Cell: cell})
		}
	}

	sortByScore(results)
	return results, nil
}

// Merge combines result lists for presentation, de-duplicating by cell
// index and keeping the higher score, ordered descending.
func Merge(lists ...[]Result) []Result {
	best := make(map[int]Result)
	for _, list := range lists {
		for _, r := range list {
			if prev, ok := best[r.CellIndex]; !ok || r.Score > prev.Score {
				best[r.CellIndex] = r
			}
		}
	}

	merged := make([]Result, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sortByScore(merged)
	return merged
}

// FormatResults renders results as numbered blocks for the assistant.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No matching cells found."
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "\n=== Result %d ===\n", i+1)
		fmt.Fprintf(&b, "Cell Index: %d\n", r.CellIndex)
		fmt.Fprintf(&b, "Cell Type: %s\n", r.Cell.Kind)
		fmt.Fprintf(&b, "Score: %.2f (%s)\n", r.Score, r.MatchKind)
		fmt.Fprintf(&b, "Content:\n%s\n", r.Cell.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// sortByScore orders descending by score, breaking ties by cell index
// so output is deterministic.
func sortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CellIndex < results[j].CellIndex
	})
}
