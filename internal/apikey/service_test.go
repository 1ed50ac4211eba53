package apikey

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKeyRepo struct {
	keys []Key
}

func (m *memKeyRepo) Create(_ context.Context, k *Key) error {
	k.ID = uuid.New()
	m.keys = append(m.keys, *k)
	return nil
}

func (m *memKeyRepo) FindByPrefix(_ context.Context, prefix string) ([]Key, error) {
	var out []Key
	for _, k := range m.keys {
		if k.KeyPrefix == prefix && k.RevokedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memKeyRepo) Revoke(_ context.Context, id uuid.UUID) error {
	for i := range m.keys {
		if m.keys[i].ID == id {
			now := m.keys[i].CreatedAt
			m.keys[i].RevokedAt = &now
			return nil
		}
	}
	return ErrKeyNotFound
}

func (m *memKeyRepo) CountAll(_ context.Context) (int, error) {
	return len(m.keys), nil
}

// bcrypt cost 4 keeps the tests fast; production uses the configured cost.
const testBcryptCost = 4

func TestGenerateKey(t *testing.T) {
	svc := NewService(&memKeyRepo{}, testBcryptCost)

	rawKey, prefix, hash, err := svc.GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rawKey, "agw_"))
	assert.Equal(t, rawKey[:8], prefix)
	assert.NotContains(t, hash, rawKey)

	other, _, _, err := svc.GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, rawKey, other)
}

func TestAuthenticate(t *testing.T) {
	repo := &memKeyRepo{}
	svc := NewService(repo, testBcryptCost)
	ctx := context.Background()

	rawKey, prefix, hash, err := svc.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, &Key{Name: "dispatcher", KeyPrefix: prefix, KeyHash: hash}))

	t.Run("valid key", func(t *testing.T) {
		id, err := svc.Authenticate(ctx, rawKey)
		require.NoError(t, err)
		assert.Equal(t, "dispatcher", id.Name)
	})

	t.Run("wrong key with matching prefix", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, prefix+"tampered-suffix")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "agw_nope-nothing-here")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "agw_")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("revoked key", func(t *testing.T) {
		require.NoError(t, repo.Revoke(ctx, repo.keys[0].ID))
		_, err := svc.Authenticate(ctx, rawKey)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestBootstrap(t *testing.T) {
	repo := &memKeyRepo{}
	svc := NewService(repo, testBcryptCost)
	ctx := context.Background()

	rawKey, err := svc.Bootstrap(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rawKey)

	id, err := svc.Authenticate(ctx, rawKey)
	require.NoError(t, err)
	assert.Equal(t, "bootstrap", id.Name)

	// Second bootstrap is a no-op once any key exists.
	again, err := svc.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, repo.keys, 1)
}
