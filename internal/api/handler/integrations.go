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
	"github.com/agentgate/agentgate/internal/credential"
	"github.com/agentgate/agentgate/internal/user"
)

// IntegrationsHandler manages per-user integration state: enable/disable,
// OAuth code application, and disconnect.
type IntegrationsHandler struct {
	users        user.Repository
	integrations catalog.IntegrationRepository
	creds        *credential.Service
}

// NewIntegrationsHandler creates a new IntegrationsHandler.
func NewIntegrationsHandler(users user.Repository, integrations catalog.IntegrationRepository, creds *credential.Service) *IntegrationsHandler {
	return &IntegrationsHandler{
		users:        users,
		integrations: integrations,
		creds:        creds,
	}
}

// resolve loads the user and integration named in the URL. It writes the
// error response itself and reports success through ok.
func (h *IntegrationsHandler) resolve(w http.ResponseWriter, r *http.Request) (u *user.User, in *catalog.Integration, ok bool) {
	requestID := middleware.GetRequestID(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "userID must be a valid UUID", requestID)
		return nil, nil, false
	}

	u, err = h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "User not found", requestID)
			return nil, nil, false
		}
		slog.Error("failed to load user", "error", err, "userId", userID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user", requestID)
		return nil, nil, false
	}

	slug := chi.URLParam(r, "integration")
	in, err = h.integrations.Get(r.Context(), slug)
	if err != nil {
		if errors.Is(err, catalog.ErrIntegrationNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Unknown integration", requestID)
			return nil, nil, false
		}
		slog.Error("failed to load integration", "error", err, "integration", slug)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load integration", requestID)
		return nil, nil, false
	}

	return u, in, true
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// Toggle handles PUT /users/{userID}/integrations/{integration}.
func (h *IntegrationsHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	u, in, ok := h.resolve(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "enabled is required", requestID)
		return
	}

	if err := h.creds.SetEnabled(r.Context(), u.Email, in.Slug, *req.Enabled, in.DefaultEnabled); err != nil {
		slog.Error("failed to toggle integration", "error", err, "user", u.Email, "integration", in.Slug)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to toggle integration", requestID)
		return
	}

	response.NoContent(w)
}

type authorizeRequest struct {
	Code string `json:"code"`
}

// Authorize handles POST /users/{userID}/integrations/{integration}/authorize.
// It applies the OAuth callback code: exchanged tokens are encrypted and
// the credential marked authorized.
func (h *IntegrationsHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	u, in, ok := h.resolve(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "code is required", requestID)
		return
	}

	if err := h.creds.Authorize(r.Context(), u.Email, in.Slug, req.Code); err != nil {
		if errors.Is(err, credential.ErrProviderNotConfigured) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "No OAuth provider configured for integration", requestID)
			return
		}
		slog.Error("authorization failed", "error", err, "user", u.Email, "integration", in.Slug)
		response.Err(w, http.StatusBadGateway, "EXCHANGE_FAILED", "Authorization code exchange failed", requestID)
		return
	}

	response.NoContent(w)
}

// Disconnect handles DELETE /users/{userID}/integrations/{integration}.
// Upstream revocation is best effort; local state always clears.
func (h *IntegrationsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	u, in, ok := h.resolve(w, r)
	if !ok {
		return
	}

	if err := h.creds.Disconnect(r.Context(), u.Email, in.Slug); err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "No credential for integration", requestID)
			return
		}
		slog.Error("disconnect failed", "error", err, "user", u.Email, "integration", in.Slug)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to disconnect integration", requestID)
		return
	}

	response.NoContent(w)
}
