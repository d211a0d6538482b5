package notebook

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster fans a wire message out to all connected subscribers.
// Implemented by the hub; a no-op implementation is fine for tests.
type Broadcaster interface {
	Broadcast(v any)
}

// Store owns the document. All mutation goes through Propose: the
// proposal is broadcast first, then either committed immediately
// (auto-apply, the single-subscriber deployment) or parked until a
// subscriber accepts it. Observers therefore never see an untracked
// jump in document state.
type Store struct {
	mu          sync.Mutex
	cells       []Cell
	revision    int64
	loaded      bool
	pending     map[string]EditProposal
	broadcaster Broadcaster
	autoApply   bool
	logger      *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithAutoApply commits proposals immediately after broadcast instead
// of waiting for an explicit accept.
func WithAutoApply(on bool) StoreOption {
	return func(s *Store) { s.autoApply = on }
}

// NewStore creates an empty store. The broadcaster must not be nil.
func NewStore(b Broadcaster, logger *zap.Logger, opts ...StoreOption) *Store {
	s := &Store{
		pending:     make(map[string]EditProposal),
		broadcaster: b,
		autoApply:   true,
		logger:      logger.Named("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Replace swaps in a new document wholesale (notebook_opened /
// notebook_updated). Pending proposals reference stale indices and are
// dropped.
func (s *Store) Replace(cells []Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cells = renumber(cells)
	s.loaded = true
	s.revision++
	s.pending = make(map[string]EditProposal)
	s.logger.Info("document replaced", zap.Int("cells", len(s.cells)), zap.Int64("revision", s.revision))
}

// ReplaceWire parses a subscriber payload and replaces the document.
func (s *Store) ReplaceWire(raw []byte) error {
	cells, err := ParseWire(raw)
	if err != nil {
		return err
	}
	s.Replace(cells)
	return nil
}

// Loaded reports whether a document has been loaded.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Snapshot returns a deep-enough copy of the current document for
// read-only use (indexing, formatting).
func (s *Store) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	cells := make([]Cell, len(s.cells))
	copy(cells, s.cells)
	return Document{Cells: cells, Revision: s.revision}
}

// Revision returns the current revision counter.
func (s *Store) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Cell returns the cell at index.
func (s *Store) Cell(index int) (Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return Cell{}, ErrNotLoaded
	}
	if index < 0 || index >= len(s.cells) {
		return Cell{}, fmt.Errorf("%w: %d (document has %d cells)", ErrIndexOutOfRange, index, len(s.cells))
	}
	return s.cells[index], nil
}

// FormatContent renders the whole document as indexed cell blocks.
func (s *Store) FormatContent() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return "", ErrNotLoaded
	}
	return FormatCells(s.cells), nil
}

// Propose validates a change, broadcasts it to all subscribers, and
// then either applies it (auto-apply) or parks it pending an accept.
// The broadcast always precedes the mutation. Failure leaves the
// revision counter untouched.
func (s *Store) Propose(change EditProposal) (ProposeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ProposeResult{}, ErrNotLoaded
	}
	if err := change.validate(len(s.cells)); err != nil {
		return ProposeResult{}, err
	}

	if change.Kind == ChangeUpdate || change.Kind == ChangeDelete {
		change.PriorContent = s.cells[change.Index].Content
	}
	change.ID = uuid.NewString()

	s.broadcaster.Broadcast(proposeEnvelope{Type: "propose_changes", Changes: []EditProposal{change}})

	res := ProposeResult{ProposalID: change.ID}
	if s.autoApply {
		s.applyLocked(change)
		res.Applied = true
		res.Revision = s.revision
		res.Message = s.resultMessage(change, "Applied")
	} else {
		s.pending[change.ID] = change
		res.Revision = s.revision
		res.Message = s.resultMessage(change, "Proposed") + " Awaiting user confirmation."
	}

	s.logger.Info("proposal",
		zap.String("id", change.ID),
		zap.String("kind", string(change.Kind)),
		zap.Int("index", change.Index),
		zap.Bool("applied", res.Applied))
	return res, nil
}

// Accept commits a pending proposal. Only meaningful when auto-apply
// is off.
func (s *Store) Accept(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProposal, id)
	}
	delete(s.pending, id)

	// The document may have shrunk since the proposal was parked.
	if err := change.validate(len(s.cells)); err != nil {
		return err
	}
	s.applyLocked(change)
	return nil
}

// Reject drops a pending proposal without touching the document.
func (s *Store) Reject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProposal, id)
	}
	delete(s.pending, id)
	return nil
}

// ClearOutputs strips execution outputs from every code cell.
func (s *Store) ClearOutputs() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return 0, ErrNotLoaded
	}
	cleared := 0
	for i := range s.cells {
		if s.cells[i].Kind == KindCode && len(s.cells[i].Outputs) > 0 {
			s.cells[i].Outputs = nil
			cleared++
		}
	}
	if cleared > 0 {
		s.revision++
	}
	return cleared, nil
}

// applyLocked commits a validated change and bumps the revision by
// exactly one. Caller holds s.mu.
func (s *Store) applyLocked(change EditProposal) {
	switch change.Kind {
	case ChangeUpdate:
		kind := change.CellKind
		if kind == "" {
			kind = s.cells[change.Index].Kind
		}
		s.cells[change.Index].Kind = kind
		s.cells[change.Index].Content = change.NewContent
		s.cells[change.Index].Outputs = nil
	case ChangeInsert:
		kind := change.CellKind
		if kind == "" {
			kind = KindMarkdown
		}
		cell := Cell{Kind: kind, Content: change.NewContent}
		s.cells = append(s.cells, Cell{})
		copy(s.cells[change.Index+1:], s.cells[change.Index:])
		s.cells[change.Index] = cell
	case ChangeDelete:
		s.cells = append(s.cells[:change.Index], s.cells[change.Index+1:]...)
	}
	s.cells = renumber(s.cells)
	s.revision++
}

func (s *Store) resultMessage(change EditProposal, verb string) string {
	switch change.Kind {
	case ChangeUpdate:
		return fmt.Sprintf("%s update of %s cell %d.", verb, s.cells[min(change.Index, len(s.cells)-1)].Kind, change.Index)
	case ChangeInsert:
		return fmt.Sprintf("%s insert at index %d. Cell indices at or after %d have shifted; re-read the notebook before further edits.", verb, change.Index, change.Index)
	case ChangeDelete:
		return fmt.Sprintf("%s delete of cell %d. Cell indices after %d have shifted; re-read the notebook before further edits.", verb, change.Index, change.Index)
	}
	return verb
}

// renumber restores the dense-index invariant after a structural change.
func renumber(cells []Cell) []Cell {
	for i := range cells {
		cells[i].Index = i
	}
	return cells
}
