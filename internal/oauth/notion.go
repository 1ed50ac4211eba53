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
	notionTokenURL = "https://api.notion.com/v1/oauth/token"
	notionAPIURL   = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
)

// Notion implements Provider for Notion's OAuth flow. Notion tokens are
// permanent: no refresh token, no expiry, and no upstream revocation
// endpoint. Disconnecting only clears local state.
type Notion struct {
	cc   ClientConfig
	http *http.Client
}

// NewNotion creates a Notion provider.
func NewNotion(cc ClientConfig) *Notion {
	return &Notion{
		cc:   cc,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Exchange trades an authorization code for an access token. Notion
// requires HTTP basic auth with the client credentials and a JSON body.
func (n *Notion) Exchange(ctx context.Context, code string) (*Token, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": n.cc.RedirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notionTokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building exchange request: %w", err)
	}
	req.SetBasicAuth(n.cc.ClientID, n.cc.ClientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchanging code with notion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("notion token exchange returned status %d: %s", resp.StatusCode, data)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding notion token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("notion token response missing access_token")
	}

	return &Token{AccessToken: payload.AccessToken}, nil
}

// Refresh is unsupported: Notion tokens never expire.
func (n *Notion) Refresh(_ context.Context, _ string) (*Token, error) {
	return nil, ErrRefreshUnsupported
}

// Revoke is a local-only operation; Notion exposes no revocation endpoint.
func (n *Notion) Revoke(_ context.Context, _ string) error {
	return nil
}

// Validate checks the token against the bot-user endpoint.
func (n *Notion) Validate(ctx context.Context, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, notionAPIURL+"/users/me", nil)
	if err != nil {
		return false, fmt.Errorf("building validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Notion-Version", notionVersion)

	resp, err := n.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("validating notion token: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// SupportsRefresh reports that Notion tokens cannot be refreshed.
func (n *Notion) SupportsRefresh() bool { return false }
