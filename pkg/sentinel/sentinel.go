package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these wrapped with
// context so callers can branch with errors.Is without knowing the backend.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadySent  = errors.New("already sent")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("unavailable")
)
