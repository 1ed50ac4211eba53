package tokenctx

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentgate/agentgate/internal/secrets"
)

// ErrContextExpired is returned when a bundle is older than the allowed
// maximum age. Replayed bundles fail here.
var ErrContextExpired = errors.New("token context expired")

// ErrContextMalformed is returned when a bundle fails decryption, does not
// parse, is missing required fields, or claims a creation time in the
// future beyond the allowed clock skew.
var ErrContextMalformed = errors.New("token context malformed")

// maxClockSkew bounds how far in the future created_at may lie before the
// bundle is treated as forged.
const maxClockSkew = 60 * time.Second

// Validator opens sealed bundles on the worker side. A worker must refuse
// execution when Open fails.
type Validator struct {
	cipher *secrets.Cipher
	maxAge time.Duration
	now    func() time.Time
}

// NewValidator creates a Validator that rejects bundles older than maxAge.
func NewValidator(cipher *secrets.Cipher, maxAge time.Duration) *Validator {
	return &Validator{
		cipher: cipher,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Open decrypts, parses, and validates a sealed bundle. After a successful
// Open the bundle is plain data; lookups on it never touch the cipher again.
func (v *Validator) Open(sealed string) (*Context, error) {
	return v.OpenMaxAge(sealed, v.maxAge)
}

// OpenMaxAge is Open with a per-call age limit.
func (v *Validator) OpenMaxAge(sealed string, maxAge time.Duration) (*Context, error) {
	plaintext, err := v.cipher.DecryptString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextMalformed, err)
	}

	var tc Context
	if err := json.Unmarshal([]byte(plaintext), &tc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrContextMalformed, err)
	}

	if tc.UserID == "" || tc.UserEmail == "" || tc.CreatedAt.IsZero() || tc.Tokens == nil {
		return nil, fmt.Errorf("%w: missing required field", ErrContextMalformed)
	}

	age := v.now().Sub(tc.CreatedAt)
	if age > maxAge {
		return nil, fmt.Errorf("%w: created %s ago (max %s)", ErrContextExpired, age.Round(time.Second), maxAge)
	}
	if age < -maxClockSkew {
		return nil, fmt.Errorf("%w: created_at lies %s in the future", ErrContextMalformed, (-age).Round(time.Second))
	}

	return &tc, nil
}
