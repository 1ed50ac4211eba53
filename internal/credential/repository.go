package credential

import (
	"context"
	"errors"
	"time"
)

// ErrCredentialNotFound is returned when a credential record is not found.
var ErrCredentialNotFound = errors.New("credential not found")

// ErrNotAuthorized is returned when a credential exists but the user has
// not completed OAuth for the integration. Distinct from a decryption
// failure, which surfaces as secrets.ErrDecrypt.
var ErrNotAuthorized = errors.New("integration not authorized")

// Repository provides operations on the user_credentials table. Rows for
// distinct (user, integration) pairs are independent; every mutation is a
// single transactional row update.
type Repository interface {
	Get(ctx context.Context, userEmail, integration string) (*Credential, error)

	// GetOrCreate returns the credential row, lazily creating it with
	// defaults on first lookup.
	GetOrCreate(ctx context.Context, userEmail, integration string, defaultEnabled bool) (*Credential, error)

	// ListEnabledAuthorized returns the integration slugs for which the
	// user has both enabled the integration and completed OAuth.
	ListEnabledAuthorized(ctx context.Context, userEmail string) ([]string, error)

	// SaveAuthorization stores fresh token ciphertext and marks the
	// credential authorized.
	SaveAuthorization(ctx context.Context, userEmail, integration, accessToken string, refreshToken *string, expiresAt *time.Time) error

	// UpdateTokens runs fn under an exclusive row lock and persists the
	// returned update in the same transaction. A nil update commits
	// without modifying the row. The refresher uses this to serialize
	// refresh-and-rotate against concurrent requests.
	UpdateTokens(ctx context.Context, userEmail, integration string, fn func(cur *Credential) (*TokenUpdate, error)) (*Credential, error)

	// SetEnabled flips the admin-controlled enabled flag.
	SetEnabled(ctx context.Context, userEmail, integration string, enabled bool) error

	// Revoke clears the authorized flag and nulls all token fields.
	Revoke(ctx context.Context, userEmail, integration string) error
}
