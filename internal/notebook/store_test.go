package notebook

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder captures broadcast envelopes in order.
type recorder struct {
	events []any
}

func (r *recorder) Broadcast(v any) {
	r.events = append(r.events, v)
}

func newTestStore(t *testing.T, opts ...StoreOption) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewStore(rec, zap.NewNop(), opts...), rec
}

func twoCells() []Cell {
	return []Cell{
		{Kind: KindCode, Content: "import numpy as np"},
		{Kind: KindMarkdown, Content: "# Analysis"},
	}
}

func TestProposeUpdate(t *testing.T) {
	s, rec := newTestStore(t)
	s.Replace(twoCells())

	res, err := s.Propose(EditProposal{Kind: ChangeUpdate, Index: 0, NewContent: "import pandas as pd"})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.NotEmpty(t, res.ProposalID)
	require.Equal(t, int64(2), res.Revision)

	cell, err := s.Cell(0)
	require.NoError(t, err)
	require.Equal(t, "import pandas as pd", cell.Content)
	require.Equal(t, KindCode, cell.Kind)

	// The proposal went out before the commit and carried the prior
	// content for the subscriber's diff view.
	require.Len(t, rec.events, 1)
	env, ok := rec.events[0].(proposeEnvelope)
	require.True(t, ok)
	require.Equal(t, "propose_changes", env.Type)
	require.Len(t, env.Changes, 1)
	require.Equal(t, "import numpy as np", env.Changes[0].PriorContent)
	require.Equal(t, res.ProposalID, env.Changes[0].ID)
}

func TestProposeInsertShiftsIndices(t *testing.T) {
	s, _ := newTestStore(t)
	s.Replace(twoCells())

	res, err := s.Propose(EditProposal{Kind: ChangeInsert, Index: 1, NewContent: "## Setup", CellKind: KindMarkdown})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Contains(t, res.Message, "shifted")

	doc := s.Snapshot()
	require.Len(t, doc.Cells, 3)
	require.Equal(t, "## Setup", doc.Cells[1].Content)
	require.Equal(t, "# Analysis", doc.Cells[2].Content)
	for i, c := range doc.Cells {
		require.Equal(t, i, c.Index)
	}
}

func TestProposeInsertAtEnd(t *testing.T) {
	s, _ := newTestStore(t)
	s.Replace(twoCells())

	_, err := s.Propose(EditProposal{Kind: ChangeInsert, Index: 2, NewContent: "tail"})
	require.NoError(t, err)

	doc := s.Snapshot()
	require.Len(t, doc.Cells, 3)
	require.Equal(t, "tail", doc.Cells[2].Content)
	// Unspecified kind on insert defaults to markdown.
	require.Equal(t, KindMarkdown, doc.Cells[2].Kind)
}

func TestProposeDeleteRenumbers(t *testing.T) {
	s, _ := newTestStore(t)
	s.Replace(twoCells())

	_, err := s.Propose(EditProposal{Kind: ChangeDelete, Index: 0})
	require.NoError(t, err)

	doc := s.Snapshot()
	require.Len(t, doc.Cells, 1)
	require.Equal(t, 0, doc.Cells[0].Index)
	require.Equal(t, "# Analysis", doc.Cells[0].Content)
}

func TestProposeOutOfRange(t *testing.T) {
	s, rec := newTestStore(t)
	s.Replace(twoCells())
	before := s.Revision()

	cases := []EditProposal{
		{Kind: ChangeUpdate, Index: 2, NewContent: "x"},
		{Kind: ChangeUpdate, Index: -1, NewContent: "x"},
		{Kind: ChangeDelete, Index: 5},
		{Kind: ChangeInsert, Index: 3, NewContent: "x"},
	}
	for _, c := range cases {
		_, err := s.Propose(c)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	}

	// Failed proposals leave the revision alone and broadcast nothing.
	require.Equal(t, before, s.Revision())
	require.Empty(t, rec.events)
}

func TestProposeUnknownKind(t *testing.T) {
	s, _ := newTestStore(t)
	s.Replace(twoCells())

	_, err := s.Propose(EditProposal{Kind: "replace", Index: 0})
	require.ErrorIs(t, err, ErrUnknownChangeKind)
}

func TestProposeBeforeLoad(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Propose(EditProposal{Kind: ChangeUpdate, Index: 0, NewContent: "x"})
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestManualApplyParksUntilAccept(t *testing.T) {
	s, rec := newTestStore(t, WithAutoApply(false))
	s.Replace(twoCells())

	res, err := s.Propose(EditProposal{Kind: ChangeUpdate, Index: 0, NewContent: "changed"})
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Len(t, rec.events, 1)

	// Still the old content until accepted.
	cell, err := s.Cell(0)
	require.NoError(t, err)
	require.Equal(t, "import numpy as np", cell.Content)

	require.NoError(t, s.Accept(res.ProposalID))
	cell, err = s.Cell(0)
	require.NoError(t, err)
	require.Equal(t, "changed", cell.Content)

	// A second accept of the same id is unknown.
	err = s.Accept(res.ProposalID)
	require.ErrorIs(t, err, ErrUnknownProposal)
}

func TestRejectDropsProposal(t *testing.T) {
	s, _ := newTestStore(t, WithAutoApply(false))
	s.Replace(twoCells())

	res, err := s.Propose(EditProposal{Kind: ChangeDelete, Index: 1})
	require.NoError(t, err)

	require.NoError(t, s.Reject(res.ProposalID))
	require.Len(t, s.Snapshot().Cells, 2)
	require.ErrorIs(t, s.Accept(res.ProposalID), ErrUnknownProposal)
}

func TestReplaceDropsPending(t *testing.T) {
	s, _ := newTestStore(t, WithAutoApply(false))
	s.Replace(twoCells())

	res, err := s.Propose(EditProposal{Kind: ChangeUpdate, Index: 0, NewContent: "x"})
	require.NoError(t, err)

	s.Replace([]Cell{{Kind: KindCode, Content: "fresh"}})
	require.ErrorIs(t, s.Accept(res.ProposalID), ErrUnknownProposal)
}

func TestUpdateClearsOutputs(t *testing.T) {
	s, _ := newTestStore(t)
	s.Replace([]Cell{{Kind: KindCode, Content: "1+1", Outputs: []any{"2"}}})

	_, err := s.Propose(EditProposal{Kind: ChangeUpdate, Index: 0, NewContent: "2+2"})
	require.NoError(t, err)

	cell, err := s.Cell(0)
	require.NoError(t, err)
	require.Nil(t, cell.Outputs)
}

func TestClearOutputs(t *testing.T) {
	s, _ := newTestStore(t)
	s.Replace([]Cell{
		{Kind: KindCode, Content: "a", Outputs: []any{"out"}},
		{Kind: KindMarkdown, Content: "b"},
		{Kind: KindCode, Content: "c"},
	})
	before := s.Revision()

	cleared, err := s.ClearOutputs()
	require.NoError(t, err)
	require.Equal(t, 1, cleared)
	require.Equal(t, before+1, s.Revision())

	cleared, err = s.ClearOutputs()
	require.NoError(t, err)
	require.Equal(t, 0, cleared)
}

func TestReplaceWireRejectsGarbage(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.ReplaceWire([]byte("not json"))
	require.Error(t, err)
	require.False(t, s.Loaded())

	err = s.ReplaceWire([]byte(`{"cells":[{"cell_type":"code","source":"print(1)"}]}`))
	require.NoError(t, err)
	require.True(t, s.Loaded())
}
