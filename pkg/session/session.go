// Package session issues and reads the visitor session cookie. The cookie is an
// HS256 JWT whose subject is a random session key; the gateway counts visits and
// captures identities per (slug, session key).
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"linkgate/pkg/clock"
)

const (
	CookieName    = "lg_session"
	issuer        = "linkgate"
	defaultWindow = 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid session token")

type Manager struct {
	secret []byte
	window time.Duration
	clock  clock.Clock
}

type Option func(*Manager)

func WithWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func NewManager(secret string, opts ...Option) (*Manager, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	m := &Manager{secret: []byte(secret), window: defaultWindow, clock: clock.Real{}}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Window() time.Duration { return m.window }

// Issue signs a token for key that expires after the session window.
func (m *Manager) Issue(key string) (string, error) {
	now := m.clock.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.window)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse returns the session key held by token.
func (m *Manager) Parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Key returns the session key carried by the request cookie. A missing,
// tampered or expired cookie is replaced with a fresh key.
func (m *Manager) Key(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if key, err := m.Parse(cookie.Value); err == nil {
			return key, nil
		}
	}

	key := uuid.New().String()
	token, err := m.Issue(key)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.window.Seconds()),
	})
	return key, nil
}
