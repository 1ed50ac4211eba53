package oauth

import (
	"context"
	"errors"
)

// ErrRefreshUnsupported is returned by providers whose tokens never expire.
// Callers treat it as a no-op, not a failure.
var ErrRefreshUnsupported = errors.New("provider does not support token refresh")

// ClientConfig holds the OAuth client registration for one provider.
// Values come from the environment at startup, never from source.
type ClientConfig struct {
	ClientID     string `envconfig:"CLIENT_ID"`
	ClientSecret string `envconfig:"CLIENT_SECRET"`
	RedirectURI  string `envconfig:"REDIRECT_URI"`
}

// Token is the result of a code exchange or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string // empty when the provider did not issue one
	ExpiresIn    int    // seconds until expiry; 0 means the token does not expire
}

// Provider is the gateway's view of one integration's OAuth endpoint.
// Implementations are bound to integration slugs at configuration load.
type Provider interface {
	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (*Token, error)

	// Refresh obtains a fresh access token. When the provider rotated the
	// refresh token, the returned Token carries the replacement and the
	// old refresh token must not be reused. Providers that do not support
	// refresh return ErrRefreshUnsupported.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)

	// Revoke invalidates an access token upstream. Best effort: callers
	// clear local state whether or not this succeeds.
	Revoke(ctx context.Context, accessToken string) error

	// Validate reports whether an access token is still accepted upstream.
	Validate(ctx context.Context, accessToken string) (bool, error)

	// SupportsRefresh reports whether Refresh is meaningful for this
	// provider. When false the refresher skips the integration entirely.
	SupportsRefresh() bool
}
