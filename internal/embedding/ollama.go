package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOllamaModel    = "embeddinggemma"

	// ollamaRequestTimeout caps one embedding call. Cold model loads
	// can take a while on first use, so this is generous.
	ollamaRequestTimeout = 30 * time.Second
)

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaEngine embeds text through a local Ollama server's
// /api/embeddings endpoint.
type OllamaEngine struct {
	embedURL string
	model    string
	client   *http.Client
}

// NewOllamaEngine returns an engine for the given server and model,
// falling back to localhost and embeddinggemma when either is empty.
func NewOllamaEngine(endpoint, model string) (*OllamaEngine, error) {
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	if model == "" {
		model = defaultOllamaModel
	}

	return &OllamaEngine{
		embedURL: strings.TrimSuffix(endpoint, "/") + "/api/embeddings",
		model:    model,
		client:   &http.Client{Timeout: ollamaRequestTimeout},
	}, nil
}

// Embed returns the embedding vector for one text.
func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	var out ollamaEmbedResponse
	if err := e.post(ctx, ollamaEmbedRequest{Model: e.model, Prompt: text}, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// EmbedBatch embeds texts one at a time. Ollama has no batch endpoint;
// the search index parallelizes across a worker pool above this, so a
// sequential loop here is fine.
func (e *OllamaEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions reports the vector width. embeddinggemma emits 768-wide
// vectors.
func (e *OllamaEngine) Dimensions() int {
	return 768
}

func (e *OllamaEngine) Name() string {
	return "ollama:" + e.model
}

// post sends one JSON request to the embeddings endpoint and decodes
// the response into out.
func (e *OllamaEngine) post(ctx context.Context, in ollamaEmbedRequest, out *ollamaEmbedResponse) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.embedURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding ollama response: %w", err)
	}
	return nil
}
