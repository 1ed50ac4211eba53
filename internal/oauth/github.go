package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	githubAuthURL  = "https://github.com/login/oauth/authorize"
	githubTokenURL = "https://github.com/login/oauth/access_token"
	githubAPIURL   = "https://api.github.com"
)

// GitHub implements Provider for GitHub OAuth Apps. OAuth App tokens do
// not expire and there is no refresh flow; revocation deletes the
// application grant.
type GitHub struct {
	cfg  *oauth2.Config
	http *http.Client
}

// NewGitHub creates a GitHub provider.
func NewGitHub(cc ClientConfig, scopes []string) *GitHub {
	return &GitHub{
		cfg: &oauth2.Config{
			ClientID:     cc.ClientID,
			ClientSecret: cc.ClientSecret,
			RedirectURL:  cc.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  githubAuthURL,
				TokenURL: githubTokenURL,
			},
		},
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Exchange trades an authorization code for an access token.
func (g *GitHub) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code with github: %w", err)
	}
	// OAuth App tokens carry no refresh token and no expiry.
	return &Token{AccessToken: tok.AccessToken}, nil
}

// Refresh is unsupported for GitHub OAuth Apps.
func (g *GitHub) Refresh(_ context.Context, _ string) (*Token, error) {
	return nil, ErrRefreshUnsupported
}

// Revoke deletes the application grant, invalidating every token issued
// to this user for the app.
func (g *GitHub) Revoke(ctx context.Context, accessToken string) error {
	body, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return fmt.Errorf("encoding revoke request: %w", err)
	}

	u := fmt.Sprintf("%s/applications/%s/grant", githubAPIURL, g.cfg.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building revoke request: %w", err)
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("revoking github token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("github revoke returned status %d", resp.StatusCode)
	}
	return nil
}

// Validate checks the token against the authenticated-user endpoint.
func (g *GitHub) Validate(ctx context.Context, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubAPIURL+"/user", nil)
	if err != nil {
		return false, fmt.Errorf("building validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("validating github token: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// SupportsRefresh reports that GitHub OAuth App tokens cannot be refreshed.
func (g *GitHub) SupportsRefresh() bool { return false }
