package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and the submission service translates them into domain errors.
//
// - ErrNotFound: no row or session for the given key
// - ErrAlreadyUsed: a write-once column was already written
// - ErrInvalidState: session is in the wrong step for the requested transition
// - ErrUnavailable: backing service did not answer
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
