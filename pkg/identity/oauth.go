package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuthVerifier resolves an access token to an email by calling the
// provider's userinfo endpoint.
type OAuthVerifier struct {
	userInfoURL string
	httpClient  *http.Client
}

type userInfo struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
}

func NewOAuthVerifier(userInfoURL string, httpClient *http.Client) *OAuthVerifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthVerifier{userInfoURL: userInfoURL, httpClient: httpClient}
}

func (v *OAuthVerifier) VerifyIdentity(ctx context.Context, cred Credential) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.Token,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("build userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: userinfo returned %d", ErrVerification, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("%w: decode userinfo: %w", ErrVerification, err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("%w: userinfo carries no email", ErrVerification)
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return "", fmt.Errorf("%w: email not verified by provider", ErrVerification)
	}
	return info.Email, nil
}
