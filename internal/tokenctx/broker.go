package tokenctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentgate/agentgate/internal/credential"
	"github.com/agentgate/agentgate/internal/refresh"
	"github.com/agentgate/agentgate/internal/secrets"
	"github.com/agentgate/agentgate/internal/user"
)

// Broker assembles and seals credential bundles for worker dispatch. It
// only ever packages the integrations a single invocation needs, never the
// user's full credential table.
type Broker struct {
	users     user.Repository
	creds     *credential.Service
	refresher *refresh.Refresher
	cipher    *secrets.Cipher
	now       func() time.Time
}

// NewBroker creates a context Broker.
func NewBroker(users user.Repository, creds *credential.Service, refresher *refresh.Refresher, cipher *secrets.Cipher) *Broker {
	return &Broker{
		users:     users,
		creds:     creds,
		refresher: refresher,
		cipher:    cipher,
		now:       time.Now,
	}
}

// Build assembles a bundle for the given integrations. Integrations the
// user has not both enabled and authorized are left out; their secrets
// never enter a bundle. Tokens inside the refresh window are refreshed
// first.
func (b *Broker) Build(ctx context.Context, userID uuid.UUID, integrations []string) (*Context, error) {
	u, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	tc := &Context{
		UserID:    u.ID.String(),
		UserEmail: u.Email,
		CreatedAt: b.now().UTC(),
		Tokens:    make(map[string]TokenRecord, len(integrations)),
	}

	for _, slug := range integrations {
		if _, done := tc.Tokens[slug]; done {
			continue
		}

		cred, err := b.creds.Get(ctx, u.Email, slug)
		if err != nil {
			if errors.Is(err, credential.ErrCredentialNotFound) {
				slog.Warn("requested integration has no credential", "user", u.Email, "integration", slug)
				continue
			}
			return nil, fmt.Errorf("loading credential for %s: %w", slug, err)
		}

		if !cred.IsEnabled || !cred.IsAuthorized {
			slog.Warn("requested integration not enabled and authorized",
				"user", u.Email, "integration", slug,
				"enabled", cred.IsEnabled, "authorized", cred.IsAuthorized)
			continue
		}

		cred, err = b.refresher.RefreshIfNeeded(ctx, cred)
		if err != nil {
			return nil, fmt.Errorf("refreshing %s: %w", slug, err)
		}

		access, refreshToken, err := b.creds.DecryptTokens(cred)
		if err != nil {
			return nil, err
		}

		rec := TokenRecord{AccessToken: access, RefreshToken: refreshToken}
		if cred.ExpiresAt != nil {
			s := cred.ExpiresAt.UTC().Format(time.RFC3339)
			rec.ExpiresAt = &s
		}

		tc.Tokens[slug] = rec
	}

	slog.Info("token context built", "user", u.Email, "integrations", tc.Integrations())

	return tc, nil
}

// Seal serializes the bundle and encrypts it into a single opaque string
// safe for an HTTP body.
func (b *Broker) Seal(tc *Context) (string, error) {
	data, err := json.Marshal(tc)
	if err != nil {
		return "", fmt.Errorf("serializing token context: %w", err)
	}
	sealed, err := b.cipher.EncryptString(string(data))
	if err != nil {
		return "", fmt.Errorf("sealing token context: %w", err)
	}
	return sealed, nil
}

// BuildSealed is the dispatch-path composition of Build and Seal.
func (b *Broker) BuildSealed(ctx context.Context, userID uuid.UUID, integrations []string) (string, error) {
	tc, err := b.Build(ctx, userID, integrations)
	if err != nil {
		return "", err
	}
	return b.Seal(tc)
}
