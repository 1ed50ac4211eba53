package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentgate/agentgate/internal/api/middleware"
	"github.com/agentgate/agentgate/internal/api/response"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/internal/user"
)

// ToolsHandler serves the resolved tool set for a user.
type ToolsHandler struct {
	resolver *permission.Resolver
}

// NewToolsHandler creates a new ToolsHandler.
func NewToolsHandler(resolver *permission.Resolver) *ToolsHandler {
	return &ToolsHandler{resolver: resolver}
}

type toolsData struct {
	Tools []string `json:"tools"`
}

// List handles GET /users/{userID}/tools.
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "userID must be a valid UUID", requestID)
		return
	}

	allowed, err := h.resolver.ResolveAllowedTools(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "User not found", requestID)
			return
		}
		slog.Error("failed to resolve allowed tools", "error", err, "userId", userID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve allowed tools", requestID)
		return
	}

	tools := make([]string, 0, len(allowed))
	for ref := range allowed {
		tools = append(tools, ref)
	}
	sort.Strings(tools)

	response.Success(w, http.StatusOK, toolsData{Tools: tools}, requestID)
}
