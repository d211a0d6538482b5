// Package agent runs the dispatch loop: it feeds user prompts to the
// completion service, streams the reply to subscribers as it arrives,
// executes requested tools, and loops until the assistant answers in
// plain text or the round cap forces it to.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"nbcopilot/internal/assembler"
	"nbcopilot/internal/llm"
	"nbcopilot/internal/notebook"
	"nbcopilot/internal/prompt"
	"nbcopilot/internal/protocol"
	"nbcopilot/internal/tools"
	"nbcopilot/internal/types"
)

// defaultMaxRounds bounds tool-use rounds per prompt. When the cap is
// reached the final completion runs with tools disabled so the
// assistant must answer in text.
const defaultMaxRounds = 3

// Agent owns one session's conversation. It is driven by a single
// goroutine (the input loop); Reset may be called from elsewhere.
type Agent struct {
	client      types.CompletionClient
	registry    *tools.Registry
	broadcaster notebook.Broadcaster
	store       *notebook.Store
	prompts     prompt.Prompts
	logger      *zap.Logger

	maxRounds  int
	usePlanner bool

	mu      sync.Mutex
	history []types.Turn
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxRounds overrides the tool-use round cap.
func WithMaxRounds(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxRounds = n
		}
	}
}

// WithPlanner toggles the planning pre-pass before editing.
func WithPlanner(on bool) Option {
	return func(a *Agent) { a.usePlanner = on }
}

// New creates an agent for one session.
func New(client types.CompletionClient, registry *tools.Registry, broadcaster notebook.Broadcaster, store *notebook.Store, prompts prompt.Prompts, logger *zap.Logger, opts ...Option) *Agent {
	a := &Agent{
		client:      client,
		registry:    registry,
		broadcaster: broadcaster,
		store:       store,
		prompts:     prompts,
		logger:      logger.Named("agent"),
		maxRounds:   defaultMaxRounds,
		usePlanner:  true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reset drops the conversation history.
func (a *Agent) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
	a.logger.Info("conversation reset")
}

// Run handles one user prompt end to end. A completion-service outage
// is reported to subscribers as a system notice and returned.
func (a *Agent) Run(ctx context.Context, input protocol.UserInput) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history, types.UserTurn(a.renderInput(input)))

	if a.usePlanner {
		if err := a.planPass(ctx); err != nil {
			return a.reportFailure(err)
		}
	}
	if err := a.editLoop(ctx); err != nil {
		return a.reportFailure(err)
	}
	return nil
}

// renderInput combines the prompt with the content of any cells the
// user had selected when sending.
func (a *Agent) renderInput(input protocol.UserInput) string {
	if len(input.SelectedCells) == 0 {
		return input.Message
	}

	var b strings.Builder
	b.WriteString(input.Message)
	b.WriteString("\n\nThe user has selected these cells:\n")
	for _, index := range input.SelectedCells {
		cell, err := a.store.Cell(index)
		if err != nil {
			continue
		}
		content := cell.Content
		if content == "" {
			content = "<empty cell>"
		}
		fmt.Fprintf(&b, "\n[Cell %d - %s]\n%s\n", cell.Index, cell.Kind, content)
	}
	return b.String()
}

// planPass runs the planner role over the conversation with tools
// disabled and appends its plan as shared context for the editor.
func (a *Agent) planPass(ctx context.Context) error {
	turn, err := a.streamTurn(ctx, types.CompletionRequest{
		SystemPrompt: a.prompts.Planner,
		Turns:        a.history,
		DisableTools: true,
	}, protocol.AgentPlanner)
	if err != nil {
		return err
	}
	if plan := strings.TrimSpace(turn.Text); plan != "" {
		a.history = append(a.history, types.UserTurn("Suggested plan:\n"+plan))
	}
	return nil
}

// editLoop is the tool-dispatch loop: stream a completion, execute any
// requested tools, feed results back, repeat. The iteration after the
// cap runs with tools disabled, so the number of completions per
// prompt is bounded by maxRounds+1.
func (a *Agent) editLoop(ctx context.Context) error {
	defs := a.registry.Definitions()

	for round := 0; ; round++ {
		forced := round >= a.maxRounds
		if forced {
			a.logger.Warn("round cap reached, forcing final answer", zap.Int("rounds", round))
		}

		turn, err := a.streamTurn(ctx, types.CompletionRequest{
			SystemPrompt: a.prompts.Editor,
			Turns:        a.history,
			Tools:        defs,
			DisableTools: forced,
		}, protocol.AgentEditor)
		if err != nil {
			return err
		}
		a.history = append(a.history, turn)

		if len(turn.ToolCalls) == 0 || forced {
			return nil
		}

		for _, call := range turn.ToolCalls {
			a.broadcaster.Broadcast(protocol.NewMessage(protocol.AgentEditor, fmt.Sprintf("[Calling tool %s...]", call.Name)))

			res := a.registry.ExecuteJSON(ctx, call.Name, call.ArgumentsJSON)
			if !res.IsSuccess() {
				a.logger.Warn("tool failed", zap.String("tool", call.Name), zap.Error(res.Err))
			}
			// Subscribers see the outcome too, success or synthesized error.
			a.broadcaster.Broadcast(protocol.NewMessage(protocol.AgentEditor, "Tool result: "+res.Content()))
			a.history = append(a.history, types.ToolResultTurn(call.ID, res.Content()))
		}
	}
}

// streamTurn runs one streamed completion, broadcasting text deltas
// under the given agent identity and reducing the fragments into the
// finished turn.
func (a *Agent) streamTurn(ctx context.Context, req types.CompletionRequest, agentID string) (types.Turn, error) {
	events, err := a.client.StreamCompletion(ctx, req)
	if err != nil {
		return types.Turn{}, err
	}

	asm := assembler.New()
	for ev := range events {
		if ev.Err != nil {
			return types.Turn{}, ev.Err
		}
		if ev.Fragment.Kind == types.FragmentText && ev.Fragment.Text != "" {
			a.broadcaster.Broadcast(protocol.NewMessage(agentID, ev.Fragment.Text))
		}
		asm.Reduce(ev.Fragment)
	}
	return asm.Finish(), nil
}

// reportFailure tells subscribers the service is down instead of
// silently eating the prompt.
func (a *Agent) reportFailure(err error) error {
	if errors.Is(err, llm.ErrUnavailable) {
		a.broadcaster.Broadcast(protocol.NewMessage(protocol.AgentSystem,
			"The completion service is currently unavailable. Please try again shortly."))
	} else {
		a.broadcaster.Broadcast(protocol.NewMessage(protocol.AgentSystem,
			fmt.Sprintf("Request failed: %v", err)))
	}
	a.logger.Error("prompt failed", zap.Error(err))
	return err
}
