package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifierFunc func(ctx context.Context, cred Credential) (string, error)

func (f verifierFunc) VerifyIdentity(ctx context.Context, cred Credential) (string, error) {
	return f(ctx, cred)
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
		wantErr  bool
	}{
		{name: "lowercases and trims", in: "  Jane.Doe@Example.COM ", expected: "jane.doe@example.com"},
		{name: "plain", in: "a@b.co", expected: "a@b.co"},
		{name: "empty", in: "   ", wantErr: true},
		{name: "no at sign", in: "jane.example.com", wantErr: true},
		{name: "display name", in: "Jane <jane@example.com>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrVerification)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseChannelAndKind(t *testing.T) {
	ch, err := ParseChannel("PASSIVE")
	require.NoError(t, err)
	assert.Equal(t, ChannelPassive, ch)

	ch, err = ParseChannel("")
	require.NoError(t, err)
	assert.Equal(t, ChannelExplicit, ch)

	_, err = ParseChannel("telepathy")
	assert.Error(t, err)

	kind, err := ParseTokenKind("access_token")
	require.NoError(t, err)
	assert.Equal(t, KindAccessToken, kind)

	_, err = ParseTokenKind("saml")
	assert.Error(t, err)
}

func TestDispatcherRoutesByKind(t *testing.T) {
	d := NewDispatcher(time.Second).
		Register(KindIDToken, verifierFunc(func(context.Context, Credential) (string, error) { return "ID@Example.com", nil })).
		Register(KindAccessToken, verifierFunc(func(context.Context, Credential) (string, error) { return "access@example.com", nil }))

	email, err := d.VerifyIdentity(context.Background(), Credential{Kind: KindIDToken, Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, "id@example.com", email)

	email, err = d.VerifyIdentity(context.Background(), Credential{Kind: KindAccessToken, Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, "access@example.com", email)
}

func TestDispatcherFailures(t *testing.T) {
	failing := verifierFunc(func(context.Context, Credential) (string, error) { return "", errors.New("provider down") })
	d := NewDispatcher(time.Second).Register(KindIDToken, failing)

	t.Run("empty token", func(t *testing.T) {
		_, err := d.VerifyIdentity(context.Background(), Credential{Kind: KindIDToken})
		assert.ErrorIs(t, err, ErrVerification)
	})

	t.Run("unregistered kind", func(t *testing.T) {
		_, err := d.VerifyIdentity(context.Background(), Credential{Kind: KindAccessToken, Token: "t"})
		assert.ErrorIs(t, err, ErrVerification)
		assert.ErrorIs(t, err, ErrUnsupportedCredential)
	})

	t.Run("verifier error is wrapped", func(t *testing.T) {
		_, err := d.VerifyIdentity(context.Background(), Credential{Kind: KindIDToken, Token: "t"})
		assert.ErrorIs(t, err, ErrVerification)
		assert.Contains(t, err.Error(), "provider down")
	})
}

func TestDispatcherBoundsVerification(t *testing.T) {
	slow := verifierFunc(func(ctx context.Context, _ Credential) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	d := NewDispatcher(20*time.Millisecond).Register(KindIDToken, slow)

	start := time.Now()
	_, err := d.VerifyIdentity(context.Background(), Credential{Kind: KindIDToken, Token: "t"})
	assert.ErrorIs(t, err, ErrVerification)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
