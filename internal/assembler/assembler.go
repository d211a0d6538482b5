// Package assembler reassembles the incrementally-delivered fragments
// of one completion-service response into a single completed assistant
// turn. It is pure data accumulation with no side effects: the dispatch
// loop feeds fragments in and reads the turn out, which keeps the
// reduction independently testable against canned fragment sequences.
package assembler

import (
	"sort"
	"strings"

	"nbcopilot/internal/types"
)

// slot accumulates one tool call addressed by its stream-local index.
type slot struct {
	id   string
	name string
	args strings.Builder
}

// Assembler reduces a fragment sequence into one turn. The zero value
// is not usable; call New.
type Assembler struct {
	text  strings.Builder
	slots map[int]*slot
}

// New returns an empty assembler for one response stream.
func New() *Assembler {
	return &Assembler{slots: make(map[int]*slot)}
}

// Reduce folds one fragment into the accumulated state. Text deltas
// append to the turn's text; tool-call deltas create their slot on
// first encounter, overwrite id/name when present, and concatenate
// argument deltas in arrival order.
func (a *Assembler) Reduce(f types.Fragment) {
	switch f.Kind {
	case types.FragmentText:
		a.text.WriteString(f.Text)
	case types.FragmentToolCall:
		s, ok := a.slots[f.Slot]
		if !ok {
			s = &slot{}
			a.slots[f.Slot] = s
		}
		if f.ID != "" {
			s.id = f.ID
		}
		if f.Name != "" {
			s.name = f.Name
		}
		s.args.WriteString(f.ArgsDelta)
	}
}

// Text returns the text accumulated so far without finalizing anything.
func (a *Assembler) Text() string {
	return a.text.String()
}

// Finish normalizes and returns the completed assistant turn. Tool
// calls are ordered by slot index. A call with absent arguments is
// normalized to "{}" rather than aborting the turn; it is dispatched
// with an empty object and allowed to fail inside dispatch instead.
func (a *Assembler) Finish() types.Turn {
	turn := types.Turn{Role: types.RoleAssistant, Text: a.text.String()}

	if len(a.slots) == 0 {
		return turn
	}

	indices := make([]int, 0, len(a.slots))
	for i := range a.slots {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	for _, i := range indices {
		s := a.slots[i]
		args := s.args.String()
		if args == "" {
			args = "{}"
		}
		turn.ToolCalls = append(turn.ToolCalls, types.ToolCall{
			ID:            s.id,
			Name:          s.name,
			ArgumentsJSON: args,
		})
	}
	return turn
}
