package notebook

import "errors"

// Document store errors.
var (
	// ErrNotLoaded is returned when no document has been loaded yet.
	ErrNotLoaded = errors.New("no notebook loaded")

	// ErrIndexOutOfRange is returned for a target index outside the document.
	ErrIndexOutOfRange = errors.New("cell index out of range")

	// ErrUnknownChangeKind is returned for a proposal with an unrecognized kind.
	ErrUnknownChangeKind = errors.New("unknown change kind")

	// ErrUnknownProposal is returned when accepting or rejecting an id
	// that is not pending.
	ErrUnknownProposal = errors.New("unknown proposal id")
)
