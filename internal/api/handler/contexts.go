package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentgate/agentgate/internal/api/middleware"
	"github.com/agentgate/agentgate/internal/api/response"
	"github.com/agentgate/agentgate/internal/catalog"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/internal/secrets"
	"github.com/agentgate/agentgate/internal/tokenctx"
	"github.com/agentgate/agentgate/internal/user"
)

// ContextsHandler serves the dispatch-side sealing endpoint and the
// worker-side opening endpoint.
type ContextsHandler struct {
	resolver  *permission.Resolver
	broker    *tokenctx.Broker
	validator *tokenctx.Validator
	timeout   time.Duration
}

// NewContextsHandler creates a new ContextsHandler. The timeout bounds the
// whole permission-check, refresh and seal pipeline.
func NewContextsHandler(resolver *permission.Resolver, broker *tokenctx.Broker, validator *tokenctx.Validator, timeout time.Duration) *ContextsHandler {
	return &ContextsHandler{
		resolver:  resolver,
		broker:    broker,
		validator: validator,
		timeout:   timeout,
	}
}

type createContextRequest struct {
	UserID string `json:"userId"`
	Tool   string `json:"tool"`
}

type createContextResponse struct {
	Context string `json:"context"`
}

// Create handles POST /contexts: it gates the requested tool through the
// permission resolver and seals a bundle holding only that tool's
// integration.
func (h *ContextsHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "userId must be a valid UUID", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.resolver.CheckTool(ctx, userID, req.Tool); err != nil {
		switch {
		case errors.Is(err, permission.ErrInvalidToolRef):
			response.Err(w, http.StatusBadRequest, "INVALID_TOOL_REF", "tool must have the form integration:tool", requestID)
		case errors.Is(err, catalog.ErrIntegrationNotFound):
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Unknown integration", requestID)
		case errors.Is(err, user.ErrUserNotFound):
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "User not found", requestID)
		case errors.Is(err, permission.ErrPermissionDenied):
			response.Err(w, http.StatusForbidden, "PERMISSION_DENIED", "Tool is not permitted for this user", requestID)
		default:
			slog.Error("permission check failed", "error", err, "userId", userID, "tool", req.Tool)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Permission check failed", requestID)
		}
		return
	}

	integration, _, _ := strings.Cut(req.Tool, ":")

	sealed, err := h.broker.BuildSealed(ctx, userID, []string{integration})
	if err != nil {
		if errors.Is(err, secrets.ErrDecrypt) {
			slog.Error("credential decryption failed", "error", err, "userId", userID)
			response.Err(w, http.StatusInternalServerError, "CREDENTIAL_ERROR", "Stored credential could not be decrypted", requestID)
			return
		}
		slog.Error("failed to build token context", "error", err, "userId", userID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to build token context", requestID)
		return
	}

	response.Success(w, http.StatusCreated, createContextResponse{Context: sealed}, requestID)
}

type openContextRequest struct {
	Context       string `json:"context"`
	MaxAgeSeconds int    `json:"maxAgeSeconds,omitempty"`
}

// Open handles POST /contexts/open, the worker-side shim. The decrypted
// bundle is returned to the authenticated worker, which holds it in memory
// for the lifetime of one invocation.
func (h *ContextsHandler) Open(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req openContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}
	if req.Context == "" {
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "context is required", requestID)
		return
	}

	var (
		tc  *tokenctx.Context
		err error
	)
	if req.MaxAgeSeconds > 0 {
		tc, err = h.validator.OpenMaxAge(req.Context, time.Duration(req.MaxAgeSeconds)*time.Second)
	} else {
		tc, err = h.validator.Open(req.Context)
	}
	if err != nil {
		switch {
		case errors.Is(err, tokenctx.ErrContextExpired):
			response.Err(w, http.StatusBadRequest, "CONTEXT_EXPIRED", "Token context is too old", requestID)
		case errors.Is(err, tokenctx.ErrContextMalformed):
			response.Err(w, http.StatusBadRequest, "CONTEXT_MALFORMED", "Token context failed validation", requestID)
		default:
			slog.Error("failed to open token context", "error", err)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to open token context", requestID)
		}
		return
	}

	response.Success(w, http.StatusOK, tc, requestID)
}
