package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agentgate/agentgate/internal/api/handler"
	"github.com/agentgate/agentgate/internal/api/middleware"
	"github.com/agentgate/agentgate/internal/apikey"
	"github.com/agentgate/agentgate/internal/catalog"
	"github.com/agentgate/agentgate/internal/credential"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/internal/tokenctx"
	"github.com/agentgate/agentgate/internal/user"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger     handler.DBPinger
	Version      string
	Keys         *apikey.Service
	Users        user.Repository
	Integrations catalog.IntegrationRepository
	Tools        catalog.ToolRepository
	Perms        catalog.PermissionRepository
	Credentials  *credential.Service
	Resolver     *permission.Resolver
	Broker       *tokenctx.Broker
	Validator    *tokenctx.Validator
	BuildTimeout time.Duration
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	toolsHandler := handler.NewToolsHandler(deps.Resolver)
	integrationsHandler := handler.NewIntegrationsHandler(deps.Users, deps.Integrations, deps.Credentials)
	contextsHandler := handler.NewContextsHandler(deps.Resolver, deps.Broker, deps.Validator, deps.BuildTimeout)
	permissionsHandler := handler.NewPermissionsHandler(deps.Users, deps.Tools, deps.Perms)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(deps.Keys))

		r.Get("/users/{userID}/tools", toolsHandler.List)
		r.Put("/users/{userID}/tools/{integration}/{tool}/permission", permissionsHandler.SetUser)
		r.Put("/tools/{integration}/{tool}/permission", permissionsHandler.SetOrg)

		r.Route("/users/{userID}/integrations/{integration}", func(r chi.Router) {
			r.Put("/", integrationsHandler.Toggle)
			r.Post("/authorize", integrationsHandler.Authorize)
			r.Delete("/", integrationsHandler.Disconnect)
		})

		r.Post("/contexts", contextsHandler.Create)
		r.Post("/contexts/open", contextsHandler.Open)
	})

	return r
}
