package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	googleAuthURL      = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL     = "https://oauth2.googleapis.com/token"
	googleRevokeURL    = "https://oauth2.googleapis.com/revoke"
	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

// Google implements Provider for Google OAuth 2.0 services. Gmail,
// Calendar and Tasks each get their own instance, differing only in scopes.
// Google access tokens expire and are refreshed with a long-lived refresh
// token.
type Google struct {
	cfg  *oauth2.Config
	http *http.Client
}

// NewGoogle creates a Google provider with the given scopes.
func NewGoogle(cc ClientConfig, scopes []string) *Google {
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     cc.ClientID,
			ClientSecret: cc.ClientSecret,
			RedirectURL:  cc.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  googleAuthURL,
				TokenURL: googleTokenURL,
			},
		},
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Exchange trades an authorization code for tokens.
func (g *Google) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := g.cfg.Exchange(ctx, code, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("exchanging code with google: %w", err)
	}
	return fromOAuth2Token(tok, ""), nil
}

// Refresh obtains a fresh access token from the stored refresh token.
func (g *Google) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	src := g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing google token: %w", err)
	}
	return fromOAuth2Token(tok, refreshToken), nil
}

// Revoke invalidates the token upstream.
func (g *Google) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("revoking google token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google revoke returned status %d", resp.StatusCode)
	}
	return nil
}

// Validate checks the token against the tokeninfo endpoint.
func (g *Google) Validate(ctx context.Context, accessToken string) (bool, error) {
	u := googleTokenInfoURL + "?access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("building tokeninfo request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("validating google token: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// SupportsRefresh reports that Google tokens expire and can be refreshed.
func (g *Google) SupportsRefresh() bool { return true }

// fromOAuth2Token converts an oauth2.Token, reporting a rotated refresh
// token only when it differs from the one we already hold.
func fromOAuth2Token(tok *oauth2.Token, previousRefresh string) *Token {
	out := &Token{AccessToken: tok.AccessToken}

	if tok.RefreshToken != previousRefresh {
		out.RefreshToken = tok.RefreshToken
	}

	if !tok.Expiry.IsZero() {
		out.ExpiresIn = int(time.Until(tok.Expiry).Seconds())
	}
	return out
}
