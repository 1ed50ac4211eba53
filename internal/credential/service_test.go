package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/agentgate/internal/oauth"
	"github.com/agentgate/agentgate/internal/secrets"
)

type stubProvider struct {
	exchangeFn  func(code string) (*oauth.Token, error)
	revokeErr   error
	revokedWith []string
}

func (s *stubProvider) Exchange(_ context.Context, code string) (*oauth.Token, error) {
	return s.exchangeFn(code)
}

func (s *stubProvider) Refresh(_ context.Context, _ string) (*oauth.Token, error) {
	return nil, oauth.ErrRefreshUnsupported
}

func (s *stubProvider) Revoke(_ context.Context, accessToken string) error {
	s.revokedWith = append(s.revokedWith, accessToken)
	return s.revokeErr
}

func (s *stubProvider) Validate(_ context.Context, _ string) (bool, error) { return true, nil }
func (s *stubProvider) SupportsRefresh() bool                              { return false }

type fakeRepo struct {
	creds          map[string]*Credential // keyed by integration
	saved          *Credential
	revoked        []string
	enabled        map[string]bool
	createDefaults map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		creds:          map[string]*Credential{},
		enabled:        map[string]bool{},
		createDefaults: map[string]bool{},
	}
}

func (f *fakeRepo) Get(_ context.Context, _, integration string) (*Credential, error) {
	c, ok := f.creds[integration]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return c, nil
}

func (f *fakeRepo) GetOrCreate(_ context.Context, userEmail, integration string, defaultEnabled bool) (*Credential, error) {
	f.createDefaults[integration] = defaultEnabled
	c, ok := f.creds[integration]
	if !ok {
		c = &Credential{UserEmail: userEmail, Integration: integration, IsEnabled: defaultEnabled}
		f.creds[integration] = c
	}
	return c, nil
}

func (f *fakeRepo) ListEnabledAuthorized(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (f *fakeRepo) SaveAuthorization(_ context.Context, userEmail, integration, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	f.saved = &Credential{
		UserEmail:    userEmail,
		Integration:  integration,
		IsAuthorized: true,
		AccessToken:  &accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
	f.creds[integration] = f.saved
	return nil
}

func (f *fakeRepo) UpdateTokens(_ context.Context, _, integration string, fn func(*Credential) (*TokenUpdate, error)) (*Credential, error) {
	return f.creds[integration], nil
}

func (f *fakeRepo) SetEnabled(_ context.Context, _, integration string, enabled bool) error {
	f.enabled[integration] = enabled
	return nil
}

func (f *fakeRepo) Revoke(_ context.Context, _, integration string) error {
	f.revoked = append(f.revoked, integration)
	if c, ok := f.creds[integration]; ok {
		c.IsAuthorized = false
		c.AccessToken = nil
		c.RefreshToken = nil
		c.ExpiresAt = nil
	}
	return nil
}

type serviceEnv struct {
	cipher   *secrets.Cipher
	repo     *fakeRepo
	provider *stubProvider
	svc      *Service
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	cipher, err := secrets.NewCipher(key)
	require.NoError(t, err)

	provider := &stubProvider{}
	registry := oauth.NewRegistry()
	registry.Register("github", provider)

	repo := newFakeRepo()
	return &serviceEnv{
		cipher:   cipher,
		repo:     repo,
		provider: provider,
		svc:      NewService(repo, cipher, registry),
	}
}

func TestAuthorizeEncryptsTokensAtRest(t *testing.T) {
	env := newServiceEnv(t)
	env.provider.exchangeFn = func(code string) (*oauth.Token, error) {
		assert.Equal(t, "auth-code", code)
		return &oauth.Token{AccessToken: "gho_secret", RefreshToken: "ghr_secret", ExpiresIn: 3600}, nil
	}

	err := env.svc.Authorize(context.Background(), "ada@example.com", "github", "auth-code")
	require.NoError(t, err)

	saved := env.repo.saved
	require.NotNil(t, saved)
	assert.True(t, saved.IsAuthorized)

	// What hit the repository must be ciphertext, not the raw tokens.
	require.NotNil(t, saved.AccessToken)
	assert.NotEqual(t, "gho_secret", *saved.AccessToken)
	plain, err := env.cipher.DecryptString(*saved.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "gho_secret", plain)

	require.NotNil(t, saved.RefreshToken)
	plain, err = env.cipher.DecryptString(*saved.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "ghr_secret", plain)

	require.NotNil(t, saved.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *saved.ExpiresAt, 5*time.Second)
}

func TestAuthorizeNonExpiringTokenWithoutRefresh(t *testing.T) {
	env := newServiceEnv(t)
	env.provider.exchangeFn = func(_ string) (*oauth.Token, error) {
		return &oauth.Token{AccessToken: "gho_secret"}, nil
	}

	err := env.svc.Authorize(context.Background(), "ada@example.com", "github", "auth-code")
	require.NoError(t, err)

	assert.Nil(t, env.repo.saved.RefreshToken)
	assert.Nil(t, env.repo.saved.ExpiresAt)
}

func TestAuthorizeUnknownProvider(t *testing.T) {
	env := newServiceEnv(t)

	err := env.svc.Authorize(context.Background(), "ada@example.com", "linear", "auth-code")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestAuthorizeExchangeFailure(t *testing.T) {
	env := newServiceEnv(t)
	env.provider.exchangeFn = func(_ string) (*oauth.Token, error) {
		return nil, errors.New("invalid_grant")
	}

	err := env.svc.Authorize(context.Background(), "ada@example.com", "github", "bad-code")
	require.Error(t, err)
	assert.Nil(t, env.repo.saved)
}

func TestSetEnabledLazilyCreatesRow(t *testing.T) {
	env := newServiceEnv(t)

	err := env.svc.SetEnabled(context.Background(), "ada@example.com", "github", false, true)
	require.NoError(t, err)

	assert.True(t, env.repo.createDefaults["github"])
	assert.False(t, env.repo.enabled["github"])
}

func TestDisconnectRevokesUpstreamBestEffort(t *testing.T) {
	env := newServiceEnv(t)

	accessCT, err := env.cipher.EncryptString("gho_secret")
	require.NoError(t, err)
	env.repo.creds["github"] = &Credential{
		UserEmail:    "ada@example.com",
		Integration:  "github",
		IsAuthorized: true,
		IsEnabled:    true,
		AccessToken:  &accessCT,
	}

	t.Run("upstream revocation gets the plaintext token", func(t *testing.T) {
		err := env.svc.Disconnect(context.Background(), "ada@example.com", "github")
		require.NoError(t, err)
		assert.Equal(t, []string{"gho_secret"}, env.provider.revokedWith)
		assert.Equal(t, []string{"github"}, env.repo.revoked)
	})

	t.Run("upstream failure still clears local state", func(t *testing.T) {
		env := newServiceEnv(t)
		accessCT, err := env.cipher.EncryptString("gho_secret")
		require.NoError(t, err)
		env.repo.creds["github"] = &Credential{
			UserEmail: "ada@example.com", Integration: "github",
			IsAuthorized: true, AccessToken: &accessCT,
		}
		env.provider.revokeErr = errors.New("upstream 500")

		err = env.svc.Disconnect(context.Background(), "ada@example.com", "github")
		require.NoError(t, err)
		assert.Equal(t, []string{"github"}, env.repo.revoked)
	})

	t.Run("unknown credential", func(t *testing.T) {
		env := newServiceEnv(t)
		err := env.svc.Disconnect(context.Background(), "ada@example.com", "github")
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})
}

func TestDecryptTokens(t *testing.T) {
	env := newServiceEnv(t)

	accessCT, err := env.cipher.EncryptString("gho_secret")
	require.NoError(t, err)
	refreshCT, err := env.cipher.EncryptString("ghr_secret")
	require.NoError(t, err)

	t.Run("authorized credential decrypts", func(t *testing.T) {
		cred := &Credential{
			Integration: "github", IsAuthorized: true,
			AccessToken: &accessCT, RefreshToken: &refreshCT,
		}
		access, refresh, err := env.svc.DecryptTokens(cred)
		require.NoError(t, err)
		assert.Equal(t, "gho_secret", access)
		require.NotNil(t, refresh)
		assert.Equal(t, "ghr_secret", *refresh)
	})

	t.Run("unauthorized credential", func(t *testing.T) {
		cred := &Credential{Integration: "github", AccessToken: &accessCT}
		_, _, err := env.svc.DecryptTokens(cred)
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("authorized but empty tokens", func(t *testing.T) {
		cred := &Credential{Integration: "github", IsAuthorized: true}
		_, _, err := env.svc.DecryptTokens(cred)
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("ciphertext under a different key", func(t *testing.T) {
		otherKey, err := secrets.GenerateKey()
		require.NoError(t, err)
		otherCipher, err := secrets.NewCipher(otherKey)
		require.NoError(t, err)
		foreignCT, err := otherCipher.EncryptString("gho_secret")
		require.NoError(t, err)

		cred := &Credential{Integration: "github", IsAuthorized: true, AccessToken: &foreignCT}
		_, _, err = env.svc.DecryptTokens(cred)
		assert.ErrorIs(t, err, secrets.ErrDecrypt)
		assert.NotErrorIs(t, err, ErrNotAuthorized)
	})
}
