package tools

import (
	"context"

	"nbcopilot/internal/search"
)

// RegisterSearchTools wires the search toolset against a session's
// index. The index is rebuilt by the server whenever the document is
// replaced, so these tools only read.
func RegisterSearchTools(r *Registry, idx *search.Index) {
	r.MustRegister(NewSearchCellsTool(idx))
	r.MustRegister(NewKeywordSearchTool(idx))
}

// NewSearchCellsTool performs semantic search over the indexed cells.
func NewSearchCellsTool(idx *search.Index) *Tool {
	return &Tool{
		Name:        "search_cells",
		Description: "Semantic search over notebook cells. Returns the most relevant cells for a natural-language query, best match first.",
		Schema: Schema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query":     {Type: "string", Description: "Natural-language description of what to find"},
				"top_k":     {Type: "integer", Description: "Maximum number of results", Default: 5},
				"min_score": {Type: "number", Description: "Minimum similarity score in [0,1]", Default: 0.5},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			query, err := StringArg(args, "query")
			if err != nil {
				return "", err
			}
			topK, err := OptionalIntArg(args, "top_k", 5)
			if err != nil {
				return "", err
			}
			minScore, err := OptionalFloatArg(args, "min_score", 0.5)
			if err != nil {
				return "", err
			}

			results, err := idx.Search(ctx, query, topK, minScore)
			if err != nil {
				return "", err
			}
			return search.FormatResults(results), nil
		},
	}
}

// NewKeywordSearchTool performs exact substring search over cells.
func NewKeywordSearchTool(idx *search.Index) *Tool {
	return &Tool{
		Name:        "keyword_search",
		Description: "Exact keyword search over notebook cells. Case-insensitive substring match; set match_all to require every keyword.",
		Schema: Schema{
			Required: []string{"keywords"},
			Properties: map[string]Property{
				"keywords":  {Type: "array", Description: "Keywords to look for", Items: &PropertyItems{Type: "string"}},
				"match_all": {Type: "boolean", Description: "Require all keywords in a cell instead of any", Default: false},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			keywords, err := StringSliceArg(args, "keywords")
			if err != nil {
				return "", err
			}
			matchAll, err := OptionalBoolArg(args, "match_all", false)
			if err != nil {
				return "", err
			}

			results, err := idx.KeywordSearch(keywords, matchAll)
			if err != nil {
				return "", err
			}
			return search.FormatResults(results), nil
		},
	}
}
