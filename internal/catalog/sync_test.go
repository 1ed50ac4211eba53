package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memIntegrationRepo struct {
	bySlug map[string]*Integration
}

func (m *memIntegrationRepo) Upsert(_ context.Context, in *Integration) error {
	cp := *in
	m.bySlug[in.Slug] = &cp
	return nil
}

func (m *memIntegrationRepo) Get(_ context.Context, slug string) (*Integration, error) {
	in, ok := m.bySlug[slug]
	if !ok {
		return nil, ErrIntegrationNotFound
	}
	return in, nil
}

func (m *memIntegrationRepo) List(_ context.Context) ([]Integration, error) {
	var out []Integration
	for _, in := range m.bySlug {
		out = append(out, *in)
	}
	return out, nil
}

type memToolRepo struct {
	byRef map[string]*Tool
}

func (m *memToolRepo) Upsert(_ context.Context, t *Tool) (bool, error) {
	if existing, ok := m.byRef[t.Ref()]; ok {
		t.ID = existing.ID
		cp := *t
		m.byRef[t.Ref()] = &cp
		return false, nil
	}
	t.ID = uuid.New()
	cp := *t
	m.byRef[t.Ref()] = &cp
	return true, nil
}

func (m *memToolRepo) ListByIntegrations(_ context.Context, integrations []string) ([]Tool, error) {
	want := make(map[string]struct{}, len(integrations))
	for _, in := range integrations {
		want[in] = struct{}{}
	}
	var out []Tool
	for _, t := range m.byRef {
		if _, ok := want[t.Integration]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memToolRepo) GetByRef(_ context.Context, integration, name string) (*Tool, error) {
	t, ok := m.byRef[integration+":"+name]
	if !ok {
		return nil, ErrToolNotFound
	}
	return t, nil
}

type memPermRepo struct {
	org map[uuid.UUID]bool
}

func (m *memPermRepo) OrgOverrides(_ context.Context, _ []uuid.UUID) (map[uuid.UUID]bool, error) {
	return m.org, nil
}

func (m *memPermRepo) UserOverrides(_ context.Context, _ string, _ []uuid.UUID) (map[uuid.UUID]bool, error) {
	return nil, nil
}

func (m *memPermRepo) CreateOrgDefault(_ context.Context, toolID uuid.UUID, enabled bool) error {
	if _, ok := m.org[toolID]; ok {
		return nil
	}
	m.org[toolID] = enabled
	return nil
}

func (m *memPermRepo) SetOrgPermission(_ context.Context, toolID uuid.UUID, enabled bool) error {
	m.org[toolID] = enabled
	return nil
}

func (m *memPermRepo) SetUserPermission(_ context.Context, _ string, _ uuid.UUID, _ bool) error {
	return nil
}

type stubProviders struct {
	slugs map[string]bool
}

func (s *stubProviders) Has(slug string) bool { return s.slugs[slug] }

type syncEnv struct {
	integrations *memIntegrationRepo
	tools        *memToolRepo
	perms        *memPermRepo
	providers    *stubProviders
}

func newSyncEnv() *syncEnv {
	return &syncEnv{
		integrations: &memIntegrationRepo{bySlug: map[string]*Integration{}},
		tools:        &memToolRepo{byRef: map[string]*Tool{}},
		perms:        &memPermRepo{org: map[uuid.UUID]bool{}},
		providers:    &stubProviders{slugs: map[string]bool{"notion": true, "slack": true}},
	}
}

func (e *syncEnv) syncer(path string) *Syncer {
	return NewSyncer(e.integrations, e.tools, e.perms, e.providers, path, time.Minute)
}

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleCatalog = `
integrations:
  - slug: notion
    name: Notion
    requires_auth: true
    default_enabled: true
    tools:
      - name: search_pages
        description: Search pages in the workspace
      - name: delete_block
        description: Delete a block
  - slug: slack
    name: Slack
    requires_auth: true
    default_enabled: false
    tools:
      - name: post_message
`

func TestSyncOnce(t *testing.T) {
	env := newSyncEnv()
	path := writeCatalog(t, sampleCatalog)

	stats, err := env.syncer(path).SyncOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Integrations)
	assert.Equal(t, 3, stats.Created)
	assert.Equal(t, 0, stats.Updated)

	notion, err := env.integrations.Get(context.Background(), "notion")
	require.NoError(t, err)
	assert.True(t, notion.DefaultEnabled)

	slack, err := env.integrations.Get(context.Background(), "slack")
	require.NoError(t, err)
	assert.False(t, slack.DefaultEnabled)

	search, err := env.tools.GetByRef(context.Background(), "notion", "search_pages")
	require.NoError(t, err)
	assert.False(t, search.IsDangerous)
	assert.True(t, env.perms.org[search.ID], "safe tool defaults to org-enabled")

	del, err := env.tools.GetByRef(context.Background(), "notion", "delete_block")
	require.NoError(t, err)
	assert.True(t, del.IsDangerous)
	assert.False(t, env.perms.org[del.ID], "dangerous tool defaults to org-disabled")
}

func TestSyncOncePreservesExistingPermissions(t *testing.T) {
	env := newSyncEnv()
	path := writeCatalog(t, sampleCatalog)
	ctx := context.Background()

	_, err := env.syncer(path).SyncOnce(ctx)
	require.NoError(t, err)

	// An admin enables the dangerous tool between syncs.
	del, err := env.tools.GetByRef(ctx, "notion", "delete_block")
	require.NoError(t, err)
	require.NoError(t, env.perms.SetOrgPermission(ctx, del.ID, true))

	stats, err := env.syncer(path).SyncOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 3, stats.Updated)
	assert.True(t, env.perms.org[del.ID], "resync must not clobber the admin override")
}

func TestSyncOnceCountsUnconfiguredProviders(t *testing.T) {
	env := newSyncEnv()
	env.providers.slugs = map[string]bool{"notion": true}
	path := writeCatalog(t, sampleCatalog)

	stats, err := env.syncer(path).SyncOnce(context.Background())
	require.NoError(t, err)

	// Slack requires auth but has no provider bound.
	assert.Equal(t, 1, stats.Unconfigured)
}

func TestSyncOnceRejectsMissingSlug(t *testing.T) {
	env := newSyncEnv()
	path := writeCatalog(t, "integrations:\n  - name: Nameless\n")

	_, err := env.syncer(path).SyncOnce(context.Background())
	assert.ErrorContains(t, err, "missing slug")
}

func TestSyncOnceMissingFile(t *testing.T) {
	env := newSyncEnv()

	_, err := env.syncer(filepath.Join(t.TempDir(), "absent.yaml")).SyncOnce(context.Background())
	assert.Error(t, err)
}

func TestSyncOnceMalformedFile(t *testing.T) {
	env := newSyncEnv()
	path := writeCatalog(t, "integrations: [this is: not: valid")

	_, err := env.syncer(path).SyncOnce(context.Background())
	assert.Error(t, err)
}

func TestIsDangerous(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"delete_block", true},
		{"remove_member", true},
		{"destroy_environment", true},
		{"drop_table", true},
		{"truncate_log", true},
		{"purge_cache", true},
		{"DELETE_EMAIL", true},
		{"search_pages", false},
		{"send_email", false},
		{"undroppable", true}, // substring match is intentionally coarse
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDangerous(tt.name), "tool %q", tt.name)
	}
}
