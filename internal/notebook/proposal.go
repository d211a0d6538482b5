package notebook

import "fmt"

// ChangeKind enumerates the mutations a proposal can describe.
type ChangeKind string

const (
	ChangeUpdate ChangeKind = "update"
	ChangeInsert ChangeKind = "insert"
	ChangeDelete ChangeKind = "delete"
)

// EditProposal describes one desired document mutation. It is broadcast
// to subscribers verbatim before the store commits anything; the JSON
// tags are the subscriber wire format.
type EditProposal struct {
	ID           string   `json:"id,omitempty"`
	Kind         ChangeKind `json:"type"`
	Index        int      `json:"index"`
	PriorContent string   `json:"original_content,omitempty"`
	NewContent   string   `json:"new_content,omitempty"`
	CellKind     CellKind `json:"cell_type,omitempty"`
}

// validate checks the proposal against the current cell count. Insert
// accepts any index in [0, length]; update and delete require an
// existing cell.
func (p EditProposal) validate(length int) error {
	switch p.Kind {
	case ChangeUpdate, ChangeDelete:
		if p.Index < 0 || p.Index >= length {
			return fmt.Errorf("%w: %d (document has %d cells)", ErrIndexOutOfRange, p.Index, length)
		}
	case ChangeInsert:
		if p.Index < 0 || p.Index > length {
			return fmt.Errorf("%w: %d (insert accepts 0..%d)", ErrIndexOutOfRange, p.Index, length)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChangeKind, p.Kind)
	}
	return nil
}

// ProposeResult reports the outcome of a propose call. Message is
// phrased for the assistant: after a structural change it warns that
// previously held indices are stale.
type ProposeResult struct {
	ProposalID string
	Applied    bool
	Revision   int64
	Message    string
}

// proposeEnvelope is the wire message carrying proposals to subscribers.
type proposeEnvelope struct {
	Type    string         `json:"type"`
	Changes []EditProposal `json:"changes"`
}
