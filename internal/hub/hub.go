// Package hub manages the websocket session: the subscriber set, the
// broadcast fan-out, and the single-consumer user input queue feeding
// the dispatch loop.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nbcopilot/internal/notebook"
	"nbcopilot/internal/protocol"
)

// inputQueueSize bounds prompts parked while the dispatch loop is
// busy with an earlier one.
const inputQueueSize = 16

// subscriber is one attached websocket connection. Writes are
// serialized per connection; the underlying conn allows only one
// concurrent writer.
type subscriber struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (s *subscriber) send(payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans outbound frames to every subscriber and routes inbound
// frames by type. It satisfies the store's Broadcaster so proposals
// reach subscribers before they are applied.
type Hub struct {
	mu    sync.Mutex
	subs  map[*subscriber]struct{}
	input chan protocol.UserInput

	store  *notebook.Store
	logger *zap.Logger

	// OnDocumentReplaced runs after an inbound notebook payload has
	// replaced the store's document, before it is re-broadcast. The
	// server hooks the search reindex here. May be nil.
	OnDocumentReplaced func(doc notebook.Document)
}

// New creates a hub bound to a store. The store pointer may be wired
// after construction via Bind when construction order requires it.
func New(store *notebook.Store, logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		input:  make(chan protocol.UserInput, inputQueueSize),
		store:  store,
		logger: logger.Named("hub"),
	}
}

// Bind attaches the store after construction. The store needs the hub
// as its broadcaster and the hub needs the store for inbound routing,
// so one side has to be wired late.
func (h *Hub) Bind(store *notebook.Store) {
	h.store = store
}

// Broadcast marshals v once and sends it to every subscriber. A
// subscriber whose send fails is removed after the pass; the failure
// never interrupts delivery to the others.
func (h *Hub) Broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	snapshot := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	var failed []*subscriber
	for _, s := range snapshot {
		if err := s.send(payload); err != nil {
			h.logger.Warn("subscriber send failed, dropping", zap.Error(err))
			failed = append(failed, s)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, s := range failed {
			delete(h.subs, s)
		}
		h.mu.Unlock()
		for _, s := range failed {
			s.conn.Close()
		}
	}
}

// SubscriberCount returns the number of attached connections.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// NextInput blocks until a user prompt arrives or the context ends.
// The dispatch loop is the only consumer; prompts are never
// re-broadcast to subscribers.
func (h *Hub) NextInput(ctx context.Context) (protocol.UserInput, error) {
	select {
	case in := <-h.input:
		return in, nil
	case <-ctx.Done():
		return protocol.UserInput{}, ctx.Err()
	}
}

// ServeConn registers a connection, acknowledges it, and runs its read
// loop until the connection drops or ctx ends. The ack goes to the new
// subscriber only, never broadcast.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn) {
	s := &subscriber{conn: conn}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()

	sessionID := uuid.NewString()
	h.logger.Info("subscriber attached", zap.String("session", sessionID), zap.Int("subscribers", count))

	ack, _ := json.Marshal(protocol.SessionReady{Type: protocol.TypeSessionReady, SessionID: sessionID})
	if err := s.send(ack); err != nil {
		h.detach(s)
		return
	}

	defer func() {
		h.detach(s)
		h.logger.Info("subscriber detached", zap.String("session", sessionID))
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.route(s, raw)
	}
}

// sendSystem reports a problem to the one subscriber that caused it.
// Send failures are left to the read loop, which notices the dead
// connection on its next read.
func (h *Hub) sendSystem(s *subscriber, text string) {
	payload, err := json.Marshal(protocol.NewMessage(protocol.AgentSystem, text))
	if err != nil {
		return
	}
	if err := s.send(payload); err != nil {
		h.logger.Debug("system notice send failed", zap.Error(err))
	}
}

func (h *Hub) detach(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.conn.Close()
}

// route dispatches one inbound frame. Bad frames are dropped and
// reported back to the sender only; a misbehaving subscriber must not
// take the session down.
func (h *Hub) route(s *subscriber, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		h.logger.Warn("dropping malformed frame", zap.Error(err))
		h.sendSystem(s, fmt.Sprintf("Could not parse message: %v", err))
		return
	}

	switch m := msg.(type) {
	case protocol.UserInput:
		select {
		case h.input <- m:
		default:
			h.logger.Warn("input queue full, dropping prompt")
		}

	case protocol.NotebookPayload:
		if err := h.store.ReplaceWire(m.Content); err != nil {
			h.logger.Error("notebook payload rejected", zap.Error(err))
			h.sendSystem(s, fmt.Sprintf("Notebook payload rejected: %v", err))
			return
		}
		if h.OnDocumentReplaced != nil {
			h.OnDocumentReplaced(h.store.Snapshot())
		}
		// Other subscribers need the new document too.
		h.Broadcast(protocol.NotebookUpdate{Type: protocol.TypeNotebookUpdate, Content: m.Content})

	case protocol.ChangeDecision:
		var err error
		if m.Type == protocol.TypeAcceptChanges {
			err = h.store.Accept(m.ProposalID)
		} else {
			err = h.store.Reject(m.ProposalID)
		}
		if err != nil {
			h.logger.Warn("change decision failed", zap.String("proposal", m.ProposalID), zap.Error(err))
			h.sendSystem(s, fmt.Sprintf("Change decision for proposal %s failed: %v", m.ProposalID, err))
		}

	case protocol.Envelope:
		h.logger.Debug("ignoring frame", zap.String("type", m.Type))
	}
}
