package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Channel says how a credential was obtained.
type Channel string

const (
	// ChannelExplicit is an interactive sign-in the visitor started.
	ChannelExplicit Channel = "explicit"
	// ChannelPassive is a one-tap style assertion presented without interaction.
	ChannelPassive Channel = "passive"
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelExplicit, "":
		return ChannelExplicit, nil
	case ChannelPassive:
		return ChannelPassive, nil
	}
	return "", fmt.Errorf("unknown identity channel %q", s)
}

type TokenKind string

const (
	KindIDToken     TokenKind = "id_token"
	KindAccessToken TokenKind = "access_token"
)

func ParseTokenKind(s string) (TokenKind, error) {
	switch TokenKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindIDToken, "":
		return KindIDToken, nil
	case KindAccessToken:
		return KindAccessToken, nil
	}
	return "", fmt.Errorf("unknown token kind %q", s)
}

// Credential is an opaque proof of identity presented by a visitor.
type Credential struct {
	Channel Channel
	Kind    TokenKind
	Token   string
}

var (
	ErrVerification          = errors.New("identity verification failed")
	ErrUnsupportedCredential = errors.New("unsupported credential kind")
)

// Verifier turns a credential into a verified email address.
type Verifier interface {
	VerifyIdentity(ctx context.Context, cred Credential) (string, error)
}

// NormalizeEmail trims and lowercases an address and rejects anything that
// is not a bare addr-spec.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: empty email", ErrVerification)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", fmt.Errorf("%w: malformed email", ErrVerification)
	}
	return email, nil
}

const defaultTimeout = 5 * time.Second

// Dispatcher routes credentials to the verifier registered for their kind and
// bounds every verification with a timeout.
type Dispatcher struct {
	verifiers map[TokenKind]Verifier
	timeout   time.Duration
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{verifiers: make(map[TokenKind]Verifier), timeout: timeout}
}

// Register installs v for credentials of kind. It returns d for chaining.
func (d *Dispatcher) Register(kind TokenKind, v Verifier) *Dispatcher {
	d.verifiers[kind] = v
	return d
}

// VerifyIdentity returns the normalized email proven by cred. Every failure
// wraps ErrVerification.
func (d *Dispatcher) VerifyIdentity(ctx context.Context, cred Credential) (string, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return "", fmt.Errorf("%w: empty token", ErrVerification)
	}
	v, ok := d.verifiers[cred.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %w %q", ErrVerification, ErrUnsupportedCredential, cred.Kind)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	email, err := v.VerifyIdentity(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrVerification) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrVerification, err)
	}
	return NormalizeEmail(email)
}
