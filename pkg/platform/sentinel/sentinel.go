package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Document stores, counters and blob
// stores return these (optionally wrapped) so services can translate them into
// domain errors.
//
// - ErrNotFound: document does not exist in the store
// - ErrAlreadyUsed: unique key (id, email, template key) already taken
// - ErrConflict: concurrent modification detected
// - ErrInvalidState: document in wrong state for the requested operation
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
