package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserInfoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = w.Write([]byte(`{"email":"visitor@example.com","email_verified":true}`))
		case "Bearer unverified":
			_, _ = w.Write([]byte(`{"email":"visitor@example.com","email_verified":false}`))
		case "Bearer noemail":
			_, _ = w.Write([]byte(`{"sub":"123"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthVerifier(t *testing.T) {
	srv := newUserInfoServer(t)
	v := NewOAuthVerifier(srv.URL, srv.Client())

	email, err := v.VerifyIdentity(context.Background(), Credential{Kind: KindAccessToken, Token: "good"})
	require.NoError(t, err)
	assert.Equal(t, "visitor@example.com", email)

	for _, token := range []string{"bad", "unverified", "noemail"} {
		t.Run(token, func(t *testing.T) {
			_, err := v.VerifyIdentity(context.Background(), Credential{Kind: KindAccessToken, Token: token})
			assert.ErrorIs(t, err, ErrVerification)
		})
	}
}
