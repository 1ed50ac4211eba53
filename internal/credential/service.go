package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentgate/agentgate/internal/oauth"
	"github.com/agentgate/agentgate/internal/secrets"
)

// ErrProviderNotConfigured is returned when no OAuth provider is bound to
// the requested integration.
var ErrProviderNotConfigured = errors.New("no oauth provider configured for integration")

// Service is the credential store: it owns the encryption boundary between
// plaintext OAuth tokens and what the repository persists.
type Service struct {
	repo      Repository
	cipher    *secrets.Cipher
	providers *oauth.Registry
}

// NewService creates a credential Service.
func NewService(repo Repository, cipher *secrets.Cipher, providers *oauth.Registry) *Service {
	return &Service{
		repo:      repo,
		cipher:    cipher,
		providers: providers,
	}
}

// Get retrieves a credential record. Token fields remain ciphertext.
func (s *Service) Get(ctx context.Context, userEmail, integration string) (*Credential, error) {
	return s.repo.Get(ctx, userEmail, integration)
}

// Authorize completes the OAuth callback: it exchanges the authorization
// code with the provider, encrypts the returned tokens, and marks the
// credential authorized.
func (s *Service) Authorize(ctx context.Context, userEmail, integration, code string) error {
	provider, ok := s.providers.Get(integration)
	if !ok {
		return ErrProviderNotConfigured
	}

	tok, err := provider.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code for %s: %w", integration, err)
	}

	accessCT, err := s.cipher.EncryptString(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}

	var refreshCT *string
	if tok.RefreshToken != "" {
		ct, err := s.cipher.EncryptString(tok.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}
		refreshCT = &ct
	}

	var expiresAt *time.Time
	if tok.ExpiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	if err := s.repo.SaveAuthorization(ctx, userEmail, integration, accessCT, refreshCT, expiresAt); err != nil {
		return err
	}

	slog.Info("integration authorized", "user", userEmail, "integration", integration)
	return nil
}

// SetEnabled flips the enabled flag, lazily creating the credential row
// with the integration's default on first touch.
func (s *Service) SetEnabled(ctx context.Context, userEmail, integration string, enabled, defaultEnabled bool) error {
	if _, err := s.repo.GetOrCreate(ctx, userEmail, integration, defaultEnabled); err != nil {
		return err
	}
	return s.repo.SetEnabled(ctx, userEmail, integration, enabled)
}

// Disconnect revokes the token upstream on a best-effort basis and clears
// local state regardless of the upstream outcome.
func (s *Service) Disconnect(ctx context.Context, userEmail, integration string) error {
	cred, err := s.repo.Get(ctx, userEmail, integration)
	if err != nil {
		return err
	}

	if cred.IsAuthorized && cred.AccessToken != nil {
		if provider, ok := s.providers.Get(integration); ok {
			access, err := s.cipher.DecryptString(*cred.AccessToken)
			if err != nil {
				slog.Warn("skipping upstream revocation, token undecryptable",
					"user", userEmail, "integration", integration, "error", err)
			} else if err := provider.Revoke(ctx, access); err != nil {
				slog.Warn("upstream revocation failed",
					"user", userEmail, "integration", integration, "error", err)
			}
		}
	}

	return s.repo.Revoke(ctx, userEmail, integration)
}

// DecryptTokens returns the plaintext tokens for an authorized credential.
// A ciphertext that fails authentication surfaces secrets.ErrDecrypt,
// which callers must keep distinct from ErrNotAuthorized.
func (s *Service) DecryptTokens(cred *Credential) (access string, refresh *string, err error) {
	if !cred.IsAuthorized || cred.AccessToken == nil {
		return "", nil, ErrNotAuthorized
	}

	access, err = s.cipher.DecryptString(*cred.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("decrypting access token for %s: %w", cred.Integration, err)
	}

	if cred.RefreshToken != nil {
		rt, err := s.cipher.DecryptString(*cred.RefreshToken)
		if err != nil {
			return "", nil, fmt.Errorf("decrypting refresh token for %s: %w", cred.Integration, err)
		}
		refresh = &rt
	}

	return access, refresh, nil
}
