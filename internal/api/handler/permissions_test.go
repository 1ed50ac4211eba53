package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/agentgate/internal/catalog"
	"github.com/agentgate/agentgate/internal/user"
)

type permissionsEnv struct {
	userID   uuid.UUID
	deleteID uuid.UUID
	perms    *memPermRepo
	router   *chi.Mux
}

func newPermissionsEnv(t *testing.T) *permissionsEnv {
	t.Helper()

	id := uuid.New()
	users := &memUserRepo{users: map[uuid.UUID]*user.User{
		id: {ID: id, Email: "ada@example.com"},
	}}

	deleteID := uuid.New()
	tools := &memToolRepo{tools: []catalog.Tool{
		{ID: deleteID, Integration: "notion", Name: "delete_block"},
	}}
	perms := &memPermRepo{org: map[uuid.UUID]bool{}, user: map[uuid.UUID]bool{}}

	h := NewPermissionsHandler(users, tools, perms)
	r := chi.NewRouter()
	r.Put("/tools/{integration}/{tool}/permission", h.SetOrg)
	r.Put("/users/{userID}/tools/{integration}/{tool}/permission", h.SetUser)

	return &permissionsEnv{userID: id, deleteID: deleteID, perms: perms, router: r}
}

func (e *permissionsEnv) put(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestPermissionsSetOrg(t *testing.T) {
	env := newPermissionsEnv(t)

	t.Run("writes the override", func(t *testing.T) {
		rec := env.put(t, "/tools/notion/delete_block/permission", `{"enabled": true}`)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.True(t, env.perms.org[env.deleteID])

		rec = env.put(t, "/tools/notion/delete_block/permission", `{"enabled": false}`)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, env.perms.org[env.deleteID])
	})

	t.Run("unknown tool", func(t *testing.T) {
		rec := env.put(t, "/tools/notion/no_such_tool/permission", `{"enabled": true}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing enabled", func(t *testing.T) {
		rec := env.put(t, "/tools/notion/delete_block/permission", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).Error.Code)
	})
}

func TestPermissionsSetUser(t *testing.T) {
	env := newPermissionsEnv(t)

	t.Run("writes the override", func(t *testing.T) {
		rec := env.put(t, "/users/"+env.userID.String()+"/tools/notion/delete_block/permission", `{"enabled": false}`)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.False(t, env.perms.user[env.deleteID])
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := env.put(t, "/users/"+uuid.NewString()+"/tools/notion/delete_block/permission", `{"enabled": false}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid user id", func(t *testing.T) {
		rec := env.put(t, "/users/not-a-uuid/tools/notion/delete_block/permission", `{"enabled": false}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_ID", decodeEnvelope(t, rec).Error.Code)
	})
}
