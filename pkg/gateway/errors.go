package gateway

import (
	"errors"
	"fmt"
)

type ConfigReason string

const (
	ReasonNotFound    ConfigReason = "not_found"
	ReasonInactive    ConfigReason = "inactive"
	ReasonUnavailable ConfigReason = "unavailable"
)

// ConfigError means the link cannot be released: it is missing, inactive or
// its configuration could not be read. Shown to the visitor.
type ConfigError struct {
	Slug   string
	Reason ConfigReason
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("link %q %s: %v", e.Slug, e.Reason, e.Err)
	}
	return fmt.Sprintf("link %q %s", e.Slug, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IdentityError means the presented credential was not accepted. The visitor
// may try again.
type IdentityError struct {
	Channel   string
	Retryable bool
	Err       error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity rejected on %s channel: %v", e.Channel, e.Err)
}

func (e *IdentityError) Unwrap() error { return e.Err }

// LedgerError wraps a visit-recording failure. Never surfaced to visitors.
type LedgerError struct {
	Slug string
	Err  error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("record visit for %q: %v", e.Slug, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

var (
	ErrPassiveNotAccepted = errors.New("passive credentials are not accepted for this link")
	ErrInvalidSlug        = errors.New("invalid slug")
	ErrUnknownMode        = errors.New("unknown identity mode")
)
