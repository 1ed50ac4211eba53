package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentgate/agentgate/internal/api/middleware"
	"github.com/agentgate/agentgate/internal/api/response"
	"github.com/agentgate/agentgate/internal/catalog"
	"github.com/agentgate/agentgate/internal/user"
)

// PermissionsHandler writes org-level and user-level tool permission
// overrides. Once a row exists it is authoritative for the resolver, so
// these are the admin knobs for tightening or re-opening access.
type PermissionsHandler struct {
	users user.Repository
	tools catalog.ToolRepository
	perms catalog.PermissionRepository
}

// NewPermissionsHandler creates a new PermissionsHandler.
func NewPermissionsHandler(users user.Repository, tools catalog.ToolRepository, perms catalog.PermissionRepository) *PermissionsHandler {
	return &PermissionsHandler{
		users: users,
		tools: tools,
		perms: perms,
	}
}

type permissionRequest struct {
	Enabled *bool `json:"enabled"`
}

// lookupTool loads the tool named in the URL, writing the error response
// itself on failure.
func (h *PermissionsHandler) lookupTool(w http.ResponseWriter, r *http.Request) (*catalog.Tool, bool) {
	requestID := middleware.GetRequestID(r.Context())

	integration := chi.URLParam(r, "integration")
	name := chi.URLParam(r, "tool")

	tool, err := h.tools.GetByRef(r.Context(), integration, name)
	if err != nil {
		if errors.Is(err, catalog.ErrToolNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Unknown tool", requestID)
			return nil, false
		}
		slog.Error("failed to load tool", "error", err, "integration", integration, "tool", name)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load tool", requestID)
		return nil, false
	}

	return tool, true
}

func decodePermission(w http.ResponseWriter, r *http.Request) (bool, bool) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "enabled is required", requestID)
		return false, false
	}
	return *req.Enabled, true
}

// SetOrg handles PUT /tools/{integration}/{tool}/permission.
func (h *PermissionsHandler) SetOrg(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	tool, ok := h.lookupTool(w, r)
	if !ok {
		return
	}

	enabled, ok := decodePermission(w, r)
	if !ok {
		return
	}

	if err := h.perms.SetOrgPermission(r.Context(), tool.ID, enabled); err != nil {
		slog.Error("failed to set org permission", "error", err, "tool", tool.Ref())
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to set permission", requestID)
		return
	}

	slog.Info("org permission set", "tool", tool.Ref(), "enabled", enabled)
	response.NoContent(w)
}

// SetUser handles PUT /users/{userID}/tools/{integration}/{tool}/permission.
func (h *PermissionsHandler) SetUser(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "userID must be a valid UUID", requestID)
		return
	}

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "User not found", requestID)
			return
		}
		slog.Error("failed to load user", "error", err, "userId", userID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user", requestID)
		return
	}

	tool, ok := h.lookupTool(w, r)
	if !ok {
		return
	}

	enabled, ok := decodePermission(w, r)
	if !ok {
		return
	}

	if err := h.perms.SetUserPermission(r.Context(), u.Email, tool.ID, enabled); err != nil {
		slog.Error("failed to set user permission", "error", err, "user", u.Email, "tool", tool.Ref())
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to set permission", requestID)
		return
	}

	slog.Info("user permission set", "user", u.Email, "tool", tool.Ref(), "enabled", enabled)
	response.NoContent(w)
}
