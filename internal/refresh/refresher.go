package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentgate/agentgate/internal/credential"
	"github.com/agentgate/agentgate/internal/oauth"
	"github.com/agentgate/agentgate/internal/secrets"
)

// safetyBuffer is subtracted from the provider-reported TTL so the stored
// expiry always undershoots the real one.
const safetyBuffer = 5 * time.Minute

// defaultTTLSeconds stands in when a provider's refresh response carries no
// expires_in.
const defaultTTLSeconds = 3600

// Refresher rotates near-expiry access tokens just-in-time, immediately
// before a context bundle is sealed. There is no background sweep.
//
// Refresh attempts for the same (user, integration) pair are serialized
// twice over: an in-process keyed mutex held across refresh+persist, and a
// row lock inside the repository's UpdateTokens. Without this a losing
// concurrent refresh could persist a refresh token the provider already
// invalidated by rotation.
type Refresher struct {
	repo      credential.Repository
	cipher    *secrets.Cipher
	providers *oauth.Registry
	window    time.Duration
	locks     *keyedMutex
	now       func() time.Time
}

// NewRefresher creates a Refresher that refreshes tokens expiring within
// the given window.
func NewRefresher(repo credential.Repository, cipher *secrets.Cipher, providers *oauth.Registry, window time.Duration) *Refresher {
	return &Refresher{
		repo:      repo,
		cipher:    cipher,
		providers: providers,
		window:    window,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// RefreshIfNeeded brings the credential's access token out of the expiry
// window and returns the current row. Providers without refresh support
// and non-expiring tokens are no-ops. A provider-side refresh failure is
// logged and swallowed (the stale token is still usable for one last try
// downstream); a persist failure after a successful provider call is
// returned, because at that point the provider and the store disagree
// about which token is live.
func (r *Refresher) RefreshIfNeeded(ctx context.Context, cred *credential.Credential) (*credential.Credential, error) {
	provider, ok := r.providers.Get(cred.Integration)
	if !ok || !provider.SupportsRefresh() {
		return cred, nil
	}
	if !r.needsRefresh(cred) {
		return cred, nil
	}

	key := cred.UserEmail + "/" + cred.Integration
	r.locks.lock(key)
	defer r.locks.unlock(key)

	updated, err := r.repo.UpdateTokens(ctx, cred.UserEmail, cred.Integration, func(cur *credential.Credential) (*credential.TokenUpdate, error) {
		// A concurrent request may have refreshed while we waited on the lock.
		if !r.needsRefresh(cur) {
			return nil, nil
		}

		if cur.RefreshToken == nil {
			slog.Warn("token near expiry but no refresh token stored",
				"user", cur.UserEmail, "integration", cur.Integration)
			return nil, nil
		}

		refreshToken, err := r.cipher.DecryptString(*cur.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("decrypting refresh token for %s: %w", cur.Integration, err)
		}

		tok, err := provider.Refresh(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, oauth.ErrRefreshUnsupported) {
				return nil, nil
			}
			slog.Warn("token refresh failed, bundling stale token",
				"user", cur.UserEmail, "integration", cur.Integration, "error", err)
			return nil, nil
		}

		accessCT, err := r.cipher.EncryptString(tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("encrypting refreshed access token: %w", err)
		}

		update := &credential.TokenUpdate{AccessToken: accessCT}

		rotated := tok.RefreshToken != "" && tok.RefreshToken != refreshToken
		if rotated {
			ct, err := r.cipher.EncryptString(tok.RefreshToken)
			if err != nil {
				return nil, fmt.Errorf("encrypting rotated refresh token: %w", err)
			}
			update.RefreshToken = &ct
		}

		// Some providers omit expires_in on refresh. Assume an hour rather
		// than storing a NULL expiry, which reads as never-expiring and
		// would stop all future refreshes for this credential.
		expiresIn := tok.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = defaultTTLSeconds
		}
		t := r.now().UTC().Add(time.Duration(expiresIn)*time.Second - safetyBuffer)
		update.ExpiresAt = &t

		slog.Info("access token refreshed",
			"user", cur.UserEmail, "integration", cur.Integration, "rotated", rotated)

		return update, nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *Refresher) needsRefresh(cred *credential.Credential) bool {
	if cred.ExpiresAt == nil {
		return false
	}
	return !cred.ExpiresAt.After(r.now().Add(r.window))
}
