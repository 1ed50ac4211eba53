package credential

import "time"

// Credential represents a row in the user_credentials table. Token fields
// hold ciphertext; plaintext only exists transiently inside the service
// and the context broker.
type Credential struct {
	UserEmail    string
	Integration  string
	IsAuthorized bool
	IsEnabled    bool
	AuthorizedAt *time.Time
	AccessToken  *string    // ciphertext, nil until authorized
	RefreshToken *string    // ciphertext, nil for providers without refresh
	ExpiresAt    *time.Time // nil means the token does not expire
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenUpdate holds replacement ciphertext persisted by UpdateTokens.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken *string // nil keeps the existing refresh token
	ExpiresAt    *time.Time
}
