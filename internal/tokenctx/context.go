package tokenctx

import (
	"sort"
	"time"
)

// TokenRecord is one integration's decrypted tokens inside a bundle.
type TokenRecord struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	ExpiresAt    *string `json:"expires_at"` // RFC 3339 UTC, null for non-expiring tokens
}

// Context is the decrypted bundle handed to the execution worker. The wire
// format is exactly these four top-level keys; it only ever crosses the
// trust boundary as ciphertext.
type Context struct {
	UserID    string                 `json:"user_id"`
	UserEmail string                 `json:"user_email"`
	CreatedAt time.Time              `json:"created_at"`
	Tokens    map[string]TokenRecord `json:"tokens"`
}

// Token returns the record for an integration. Pure read; no decryption
// happens after Open.
func (c *Context) Token(integration string) (TokenRecord, bool) {
	rec, ok := c.Tokens[integration]
	return rec, ok
}

// Integrations returns the sorted slugs carried by the bundle.
func (c *Context) Integrations() []string {
	slugs := make([]string, 0, len(c.Tokens))
	for slug := range c.Tokens {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
