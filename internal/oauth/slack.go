package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const slackAPIURL = "https://slack.com/api"

// Slack implements Provider for Slack OAuth v2 user tokens. User tokens
// are long-lived and do not support refresh; revocation goes through
// auth.revoke.
type Slack struct {
	cc   ClientConfig
	http *http.Client
}

// NewSlack creates a Slack provider.
func NewSlack(cc ClientConfig) *Slack {
	return &Slack{
		cc:   cc,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Exchange trades an authorization code for a user token. Slack wraps the
// user token inside the authed_user object of its response.
func (s *Slack) Exchange(ctx context.Context, code string) (*Token, error) {
	form := url.Values{
		"client_id":     {s.cc.ClientID},
		"client_secret": {s.cc.ClientSecret},
		"code":          {code},
		"redirect_uri":  {s.cc.RedirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIURL+"/oauth.v2.access", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchanging code with slack: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		OK         bool   `json:"ok"`
		Error      string `json:"error"`
		AuthedUser struct {
			AccessToken string `json:"access_token"`
		} `json:"authed_user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding slack token response: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("slack token exchange failed: %s", payload.Error)
	}
	if payload.AuthedUser.AccessToken == "" {
		return nil, fmt.Errorf("slack token response missing authed_user access_token")
	}

	return &Token{AccessToken: payload.AuthedUser.AccessToken}, nil
}

// Refresh is unsupported: Slack OAuth v2 user tokens do not expire.
func (s *Slack) Refresh(_ context.Context, _ string) (*Token, error) {
	return nil, ErrRefreshUnsupported
}

// Revoke invalidates the token through auth.revoke.
func (s *Slack) Revoke(ctx context.Context, accessToken string) error {
	ok, err := s.callAuthEndpoint(ctx, "auth.revoke", accessToken)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("slack auth.revoke reported failure")
	}
	return nil
}

// Validate checks the token through auth.test.
func (s *Slack) Validate(ctx context.Context, accessToken string) (bool, error) {
	return s.callAuthEndpoint(ctx, "auth.test", accessToken)
}

// SupportsRefresh reports that Slack user tokens cannot be refreshed.
func (s *Slack) SupportsRefresh() bool { return false }

func (s *Slack) callAuthEndpoint(ctx context.Context, method, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIURL+"/"+method, nil)
	if err != nil {
		return false, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("calling slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decoding slack %s response: %w", method, err)
	}
	return payload.OK, nil
}
