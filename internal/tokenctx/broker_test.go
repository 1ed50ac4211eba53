package tokenctx

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/agentgate/internal/credential"
	"github.com/agentgate/agentgate/internal/oauth"
	"github.com/agentgate/agentgate/internal/refresh"
	"github.com/agentgate/agentgate/internal/secrets"
	"github.com/agentgate/agentgate/internal/user"
)

type stubUserRepo struct {
	u *user.User
}

func (s *stubUserRepo) Create(_ context.Context, _ *user.User) error { return nil }

func (s *stubUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	if s.u != nil && s.u.ID == id {
		return s.u, nil
	}
	return nil, user.ErrUserNotFound
}

func (s *stubUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	if s.u != nil && s.u.Email == email {
		return s.u, nil
	}
	return nil, user.ErrUserNotFound
}

type stubCredRepo struct {
	creds map[string]*credential.Credential // keyed by integration slug
}

func (s *stubCredRepo) Get(_ context.Context, _, integration string) (*credential.Credential, error) {
	c, ok := s.creds[integration]
	if !ok {
		return nil, credential.ErrCredentialNotFound
	}
	return c, nil
}

func (s *stubCredRepo) GetOrCreate(_ context.Context, _, integration string, _ bool) (*credential.Credential, error) {
	return s.Get(nil, "", integration)
}

func (s *stubCredRepo) ListEnabledAuthorized(_ context.Context, _ string) ([]string, error) {
	var out []string
	for slug, c := range s.creds {
		if c.IsEnabled && c.IsAuthorized {
			out = append(out, slug)
		}
	}
	return out, nil
}

func (s *stubCredRepo) SaveAuthorization(_ context.Context, _, _, _ string, _ *string, _ *time.Time) error {
	return nil
}

func (s *stubCredRepo) UpdateTokens(_ context.Context, _, integration string, fn func(*credential.Credential) (*credential.TokenUpdate, error)) (*credential.Credential, error) {
	cur, ok := s.creds[integration]
	if !ok {
		return nil, credential.ErrCredentialNotFound
	}
	update, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if update == nil {
		return cur, nil
	}
	cur.AccessToken = &update.AccessToken
	if update.RefreshToken != nil {
		cur.RefreshToken = update.RefreshToken
	}
	cur.ExpiresAt = update.ExpiresAt
	return cur, nil
}

func (s *stubCredRepo) SetEnabled(_ context.Context, _, _ string, _ bool) error { return nil }
func (s *stubCredRepo) Revoke(_ context.Context, _, _ string) error             { return nil }

type brokerEnv struct {
	userID uuid.UUID
	cipher *secrets.Cipher
	repo   *stubCredRepo
	broker *Broker
}

func newBrokerEnv(t *testing.T) *brokerEnv {
	t.Helper()

	cipher := testCipher(t)
	id := uuid.New()
	repo := &stubCredRepo{creds: map[string]*credential.Credential{}}

	registry := oauth.NewRegistry()
	creds := credential.NewService(repo, cipher, registry)
	refresher := refresh.NewRefresher(repo, cipher, registry, 5*time.Minute)
	users := &stubUserRepo{u: &user.User{ID: id, Email: "ada@example.com", Name: "Ada"}}

	return &brokerEnv{
		userID: id,
		cipher: cipher,
		repo:   repo,
		broker: NewBroker(users, creds, refresher, cipher),
	}
}

// addCredential stores an authorized, enabled credential with encrypted
// tokens and returns the plaintext access token.
func (e *brokerEnv) addCredential(t *testing.T, integration string, expiresAt *time.Time) string {
	t.Helper()

	access := "access-" + integration
	accessCT, err := e.cipher.EncryptString(access)
	require.NoError(t, err)
	refreshCT, err := e.cipher.EncryptString("refresh-" + integration)
	require.NoError(t, err)

	e.repo.creds[integration] = &credential.Credential{
		UserEmail:    "ada@example.com",
		Integration:  integration,
		IsAuthorized: true,
		IsEnabled:    true,
		AccessToken:  &accessCT,
		RefreshToken: &refreshCT,
		ExpiresAt:    expiresAt,
	}
	return access
}

func TestBrokerBuild(t *testing.T) {
	env := newBrokerEnv(t)
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	wantAccess := env.addCredential(t, "gmail", &expires)
	env.addCredential(t, "slack", nil)

	tc, err := env.broker.Build(context.Background(), env.userID, []string{"gmail", "slack"})
	require.NoError(t, err)

	assert.Equal(t, env.userID.String(), tc.UserID)
	assert.Equal(t, "ada@example.com", tc.UserEmail)
	assert.WithinDuration(t, time.Now(), tc.CreatedAt, 5*time.Second)
	assert.Equal(t, []string{"gmail", "slack"}, tc.Integrations())

	rec, ok := tc.Token("gmail")
	require.True(t, ok)
	assert.Equal(t, wantAccess, rec.AccessToken)
	require.NotNil(t, rec.RefreshToken)
	assert.Equal(t, "refresh-gmail", *rec.RefreshToken)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, expires.Format(time.RFC3339), *rec.ExpiresAt)

	rec, ok = tc.Token("slack")
	require.True(t, ok)
	assert.Nil(t, rec.ExpiresAt)
}

func TestBrokerBuildScopesToRequestedIntegrations(t *testing.T) {
	env := newBrokerEnv(t)
	env.addCredential(t, "gmail", nil)
	env.addCredential(t, "slack", nil)

	tc, err := env.broker.Build(context.Background(), env.userID, []string{"gmail"})
	require.NoError(t, err)

	assert.Equal(t, []string{"gmail"}, tc.Integrations())
}

func TestBrokerBuildSkipsUnusableIntegrations(t *testing.T) {
	env := newBrokerEnv(t)
	env.addCredential(t, "gmail", nil)
	env.addCredential(t, "slack", nil)
	env.repo.creds["slack"].IsEnabled = false
	env.addCredential(t, "notion", nil)
	env.repo.creds["notion"].IsAuthorized = false

	tc, err := env.broker.Build(context.Background(), env.userID,
		[]string{"gmail", "gmail", "slack", "notion", "linear"})
	require.NoError(t, err)

	// Disabled, unauthorized and unknown integrations are omitted rather
	// than failing the whole bundle.
	assert.Equal(t, []string{"gmail"}, tc.Integrations())
}

func TestBrokerBuildUnknownUser(t *testing.T) {
	env := newBrokerEnv(t)

	_, err := env.broker.Build(context.Background(), uuid.New(), []string{"gmail"})
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestBrokerBuildSurfacesDecryptFailure(t *testing.T) {
	env := newBrokerEnv(t)
	env.addCredential(t, "gmail", nil)

	otherKey, err := secrets.GenerateKey()
	require.NoError(t, err)
	otherCipher, err := secrets.NewCipher(otherKey)
	require.NoError(t, err)
	foreignCT, err := otherCipher.EncryptString("access-gmail")
	require.NoError(t, err)
	env.repo.creds["gmail"].AccessToken = &foreignCT

	_, err = env.broker.Build(context.Background(), env.userID, []string{"gmail"})
	assert.ErrorIs(t, err, secrets.ErrDecrypt)
}

func TestBrokerBuildSealedRoundTrip(t *testing.T) {
	env := newBrokerEnv(t)
	wantAccess := env.addCredential(t, "gmail", nil)

	sealed, err := env.broker.BuildSealed(context.Background(), env.userID, []string{"gmail"})
	require.NoError(t, err)
	assert.NotContains(t, sealed, wantAccess)

	v := NewValidator(env.cipher, 5*time.Minute)
	tc, err := v.Open(sealed)
	require.NoError(t, err)

	rec, ok := tc.Token("gmail")
	require.True(t, ok)
	assert.Equal(t, wantAccess, rec.AccessToken)
}
