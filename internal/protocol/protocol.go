// Package protocol defines the wire envelopes exchanged with
// subscribers over the websocket session. Every frame is a JSON
// object with a "type" discriminator; unknown types are ignored by
// both sides so the two ends can evolve independently.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types on the wire.
const (
	TypeMessage        = "message"
	TypeProposeChanges = "propose_changes"
	TypeNotebookUpdate = "notebook_update"
	TypeUserInput      = "user_input"
	TypeNotebookOpened = "notebook_opened"
	// TypeNotebookUpdated is the inbound document-replace frame;
	// TypeNotebookUpdate is the outbound one.
	TypeNotebookUpdated = "notebook_updated"
	TypeAcceptChanges   = "accept_changes"
	TypeRejectChanges   = "reject_changes"
	TypeSessionReady    = "session_ready"
)

// Agent identities attached to outbound messages.
const (
	AgentPlanner = "planner"
	AgentEditor  = "editor"
	AgentSystem  = "system"
)

// Envelope is the minimal inbound frame: just enough to route on the
// type field before decoding the payload.
type Envelope struct {
	Type string `json:"type"`
}

// Message is a chat message broadcast to all subscribers: streamed
// assistant deltas, tool-call notices, and system notices all travel
// in this shape.
type Message struct {
	Type      string `json:"type"`
	Agent     string `json:"agent"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage stamps a message envelope with the current time.
func NewMessage(agent, content string) Message {
	return Message{
		Type:      TypeMessage,
		Agent:     agent,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NotebookUpdate carries a full document payload to subscribers after
// a server-side reload.
type NotebookUpdate struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// UserInput is the inbound user prompt. SelectedCells carries the
// indices of any cells the user highlighted when sending.
type UserInput struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	SelectedCells []int  `json:"selected_cells,omitempty"`
}

// NotebookPayload is an inbound document frame (notebook_opened or
// notebook_updated); Content is the raw notebook JSON, handed to the
// store's wire parser untouched.
type NotebookPayload struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// ChangeDecision is an inbound accept_changes or reject_changes frame
// referencing a pending proposal by id.
type ChangeDecision struct {
	Type       string `json:"type"`
	ProposalID string `json:"proposal_id"`
}

// SessionReady is sent to a newly attached subscriber only, never
// broadcast.
type SessionReady struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Decode routes a raw frame to its concrete type.
func Decode(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case TypeUserInput:
		var m UserInput
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		return m, nil
	case TypeNotebookOpened, TypeNotebookUpdated:
		var m NotebookPayload
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		return m, nil
	case TypeAcceptChanges, TypeRejectChanges:
		var m ChangeDecision
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		return m, nil
	default:
		return env, nil
	}
}
