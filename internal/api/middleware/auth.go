package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/agentgate/agentgate/internal/api/response"
	"github.com/agentgate/agentgate/internal/apikey"
)

const identityKey contextKey = "identity"

// Auth is middleware that extracts the X-API-Key header and resolves it to
// a service Identity. Missing or invalid keys return 401.
func Auth(keys *apikey.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			rawKey := r.Header.Get("X-API-Key")
			if rawKey == "" {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is required", requestID)
				return
			}

			identity, err := keys.Authenticate(r.Context(), rawKey)
			if err != nil {
				if errors.Is(err, apikey.ErrInvalidKey) {
					response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or revoked API key", requestID)
					return
				}
				response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authentication failed", requestID)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity retrieves the authenticated Identity from the request context.
func GetIdentity(ctx context.Context) *apikey.Identity {
	if id, ok := ctx.Value(identityKey).(*apikey.Identity); ok {
		return id
	}
	return nil
}
