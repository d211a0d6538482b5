// Package llm talks to the Gemini generation API over its SSE
// streaming endpoint and turns the wire chunks into completion
// fragments for the dispatch loop. The genai SDK is used only for
// embeddings; generation speaks the REST surface directly so the
// stream can be reduced incrementally.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"nbcopilot/internal/types"
)

// ErrUnavailable marks failures where the completion service could
// not be reached or kept refusing: the session should surface a
// notice rather than crash.
var ErrUnavailable = errors.New("completion service unavailable")

// Config holds Gemini client settings.
type Config struct {
	APIKey          string        `json:"api_key"`
	BaseURL         string        `json:"base_url"`
	Model           string        `json:"model"`
	Timeout         time.Duration `json:"-"`
	MaxOutputTokens int           `json:"max_output_tokens"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.5-flash",
		Timeout:         10 * time.Minute,
		MaxOutputTokens: 65536,
	}
}

// GeminiClient implements types.CompletionClient against the Gemini
// streaming API.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
	logger          *zap.Logger

	// backoff is the base delay for the retry loop; doubled per attempt.
	backoff time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiClient creates a client from config, filling defaults for
// anything unset.
func NewGeminiClient(cfg Config, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	defaults := DefaultConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaults.MaxOutputTokens
	}

	return &GeminiClient{
		apiKey:          cfg.APIKey,
		baseURL:         cfg.BaseURL,
		model:           strings.TrimSpace(cfg.Model),
		maxOutputTokens: cfg.MaxOutputTokens,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		logger:          logger.Named("gemini"),
		backoff:         time.Second,
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// StreamCompletion opens a streaming completion and emits fragments
// as they arrive. The returned channel is closed when the stream
// ends; a failed stream delivers exactly one error event first.
func (c *GeminiClient) StreamCompletion(ctx context.Context, req types.CompletionRequest) (<-chan types.StreamEvent, error) {
	body, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	events := make(chan types.StreamEvent, 100)

	go func() {
		defer close(events)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		c.throttle()

		startTime := time.Now()
		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)

		maxRetries := 3
		var lastErr error

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(c.backoff << uint(attempt-1)):
				case <-ctx.Done():
					events <- types.StreamEvent{Err: ctx.Err()}
					return
				}
			}

			jsonData, err := json.Marshal(body)
			if err != nil {
				events <- types.StreamEvent{Err: fmt.Errorf("failed to marshal request: %w", err)}
				return
			}

			httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
			if err != nil {
				events <- types.StreamEvent{Err: fmt.Errorf("failed to create request: %w", err)}
				return
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "text/event-stream")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				lastErr = fmt.Errorf("request failed: %w", err)
				continue
			}

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				respBody, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
				continue
			}

			if resp.StatusCode != http.StatusOK {
				respBody, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				events <- types.StreamEvent{Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))}
				return
			}

			err = c.scanStream(ctx, resp.Body, events)
			resp.Body.Close()
			if err != nil {
				events <- types.StreamEvent{Err: err}
			} else {
				c.logger.Debug("stream completed", zap.Duration("elapsed", time.Since(startTime)))
			}
			return
		}

		c.logger.Error("max retries exceeded", zap.Duration("elapsed", time.Since(startTime)), zap.Error(lastErr))
		events <- types.StreamEvent{Err: fmt.Errorf("%w: %v", ErrUnavailable, lastErr)}
	}()

	return events, nil
}

// throttle enforces a minimum gap between requests.
func (c *GeminiClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

// scanStream reads SSE lines and emits a fragment per part. Function
// call slots number parts in arrival order so the reducer can key
// concurrent calls apart.
func (c *GeminiClient) scanStream(ctx context.Context, r io.Reader, events chan<- types.StreamEvent) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	calls := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}

		for _, part := range chunk.Candidates[0].Content.Parts {
			var frag types.Fragment
			switch {
			case part.FunctionCall != nil:
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				frag = types.ToolCallFragment(calls, fmt.Sprintf("call_%d", calls), part.FunctionCall.Name, string(args))
				calls++
			case part.Text != "":
				frag = types.TextFragment(part.Text)
			default:
				continue
			}

			select {
			case events <- types.StreamEvent{Fragment: frag}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream error: %w", err)
	}
	return nil
}

// buildRequest converts the transport-neutral request into the Gemini
// wire shape.
func (c *GeminiClient) buildRequest(req types.CompletionRequest) (geminiRequest, error) {
	contents, err := convertTurns(req.Turns)
	if err != nil {
		return geminiRequest{}, err
	}

	out := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     1.0,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	if req.SystemPrompt != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if !req.DisableTools && len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			}
		}
		out.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return out, nil
}

// convertTurns maps conversation turns to Gemini contents. Tool
// result turns reference calls by id; the function name is recovered
// from the assistant turn that issued the call.
func convertTurns(turns []types.Turn) ([]geminiContent, error) {
	callNames := make(map[string]string)

	contents := make([]geminiContent, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case types.RoleUser:
			contents = append(contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: turn.Text}},
			})

		case types.RoleAssistant:
			var parts []geminiPart
			if turn.Text != "" {
				parts = append(parts, geminiPart{Text: turn.Text})
			}
			for _, call := range turn.ToolCalls {
				callNames[call.ID] = call.Name
				args := map[string]any{}
				if trimmed := strings.TrimSpace(call.ArgumentsJSON); trimmed != "" {
					if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
						return nil, fmt.Errorf("tool call %s has invalid arguments: %w", call.ID, err)
					}
				}
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: call.Name, Args: args}})
			}
			if len(parts) == 0 {
				parts = []geminiPart{{Text: ""}}
			}
			contents = append(contents, geminiContent{Role: "model", Parts: parts})

		case types.RoleTool:
			name := callNames[turn.ToolCallID]
			if name == "" {
				name = turn.ToolCallID
			}
			contents = append(contents, geminiContent{
				Role: "function",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFunctionResponse{
						Name:     name,
						Response: map[string]any{"content": turn.Text},
					},
				}},
			})

		default:
			return nil, fmt.Errorf("unknown turn role: %s", turn.Role)
		}
	}
	return contents, nil
}
