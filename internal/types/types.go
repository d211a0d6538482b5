// Package types defines the conversation data model shared by the
// streaming assembler, the dispatch loop, and the completion-service
// boundary. It has no dependencies on the rest of the module so that
// every component can exchange turns without import cycles.
package types

import "context"

// Role attributes a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request by the assistant to invoke one named
// tool. During assembly it is addressed by a stream-local slot index;
// once complete it is identified by ID.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// Turn is one message in a conversation.
type Turn struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// UserTurn builds a user turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// ToolResultTurn builds a tool-result turn linked to the originating call.
func ToolResultTurn(callID, content string) Turn {
	return Turn{Role: RoleTool, Text: content, ToolCallID: callID}
}

// FragmentKind discriminates the two delta shapes a completion stream
// can carry.
type FragmentKind int

const (
	// FragmentText carries a text delta appended to the turn's text.
	FragmentText FragmentKind = iota

	// FragmentToolCall carries a tool-call delta addressed by slot.
	FragmentToolCall
)

// Fragment is one partial-response delta from the completion service,
// modeled as a tagged union so the assembler is a single reducer rather
// than ad hoc field probing.
type Fragment struct {
	Kind FragmentKind

	// Text delta (FragmentText).
	Text string

	// Tool-call delta (FragmentToolCall). Slot is the zero-based
	// stream-local index; ID and Name overwrite when non-empty,
	// ArgsDelta concatenates in arrival order.
	Slot      int
	ID        string
	Name      string
	ArgsDelta string
}

// TextFragment builds a text delta.
func TextFragment(text string) Fragment {
	return Fragment{Kind: FragmentText, Text: text}
}

// ToolCallFragment builds a tool-call delta for the given slot.
func ToolCallFragment(slot int, id, name, argsDelta string) Fragment {
	return Fragment{Kind: FragmentToolCall, Slot: slot, ID: id, Name: name, ArgsDelta: argsDelta}
}

// ToolDefinition describes a tool advertised to the completion service.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// CompletionRequest is what the core sends across the completion-service
// boundary for one streamed turn.
type CompletionRequest struct {
	SystemPrompt string
	Turns        []Turn
	Tools        []ToolDefinition

	// DisableTools forces a natural-language answer; used for the
	// round-cap forced-final completion.
	DisableTools bool
}

// StreamEvent is one element of a completion stream: either a fragment
// or a terminal error. The channel is closed after the last event.
type StreamEvent struct {
	Fragment Fragment
	Err      error
}

// CompletionClient is the boundary to the language-model service. The
// returned channel yields fragments in arrival order for exactly one
// turn and is closed on stream end.
type CompletionClient interface {
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}
