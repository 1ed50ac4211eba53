package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	atlassianTokenURL = "https://auth.atlassian.com/oauth/token"
	atlassianAPIURL   = "https://api.atlassian.com"
)

// Jira implements Provider for Atlassian OAuth 2.0 (3LO). Access tokens
// are short-lived and Atlassian rotates the refresh token on every
// refresh: the previous refresh token is invalidated the moment a new one
// is issued.
type Jira struct {
	cc   ClientConfig
	http *http.Client
}

// NewJira creates a Jira provider.
func NewJira(cc ClientConfig) *Jira {
	return &Jira{
		cc:   cc,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Exchange trades an authorization code for tokens.
func (j *Jira) Exchange(ctx context.Context, code string) (*Token, error) {
	return j.tokenRequest(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     j.cc.ClientID,
		"client_secret": j.cc.ClientSecret,
		"code":          code,
		"redirect_uri":  j.cc.RedirectURI,
	})
}

// Refresh obtains a fresh access token. The returned Token always carries
// the rotated refresh token.
func (j *Jira) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return j.tokenRequest(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     j.cc.ClientID,
		"client_secret": j.cc.ClientSecret,
		"refresh_token": refreshToken,
	})
}

// Revoke is a local-only operation; Atlassian 3LO exposes no token
// revocation endpoint.
func (j *Jira) Revoke(_ context.Context, _ string) error {
	return nil
}

// Validate checks the token against the Atlassian identity endpoint.
func (j *Jira) Validate(ctx context.Context, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, atlassianAPIURL+"/me", nil)
	if err != nil {
		return false, fmt.Errorf("building validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := j.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("validating jira token: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// SupportsRefresh reports that Atlassian tokens expire and can be refreshed.
func (j *Jira) SupportsRefresh() bool { return true }

func (j *Jira) tokenRequest(ctx context.Context, params map[string]string) (*Token, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, atlassianTokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling atlassian token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("atlassian token endpoint returned status %d: %s", resp.StatusCode, data)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding atlassian token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("atlassian token response missing access_token")
	}

	return &Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}
