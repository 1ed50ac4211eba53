package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentgate/agentgate/internal/api"
	"github.com/agentgate/agentgate/internal/apikey"
	"github.com/agentgate/agentgate/internal/catalog"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/credential"
	"github.com/agentgate/agentgate/internal/database"
	"github.com/agentgate/agentgate/internal/oauth"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/internal/refresh"
	"github.com/agentgate/agentgate/internal/secrets"
	"github.com/agentgate/agentgate/internal/tokenctx"
	"github.com/agentgate/agentgate/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	cipher, err := secrets.NewCipher(cfg.EncryptionKey)
	if err != nil {
		slog.Error("invalid encryption key", "error", err)
		os.Exit(1)
	}

	providers := buildRegistry(cfg)
	slog.Info("oauth providers registered", "slugs", providers.Slugs())

	users := user.NewRepository(db.Pool())
	creds := credential.NewRepository(db.Pool())
	integrations := catalog.NewIntegrationRepository(db.Pool())
	tools := catalog.NewToolRepository(db.Pool())
	perms := catalog.NewPermissionRepository(db.Pool())
	keyRepo := apikey.NewRepository(db.Pool())

	credService := credential.NewService(creds, cipher, providers)
	resolver := permission.NewResolver(users, creds, tools, integrations, perms)
	refresher := refresh.NewRefresher(creds, cipher, providers, time.Duration(cfg.RefreshWindow)*time.Second)
	broker := tokenctx.NewBroker(users, credService, refresher, cipher)
	validator := tokenctx.NewValidator(cipher, time.Duration(cfg.ContextMaxAge)*time.Second)
	keys := apikey.NewService(keyRepo, cfg.BcryptCost)

	if _, err := keys.Bootstrap(ctx); err != nil {
		slog.Error("failed to bootstrap service key", "error", err)
		os.Exit(1)
	}

	if cfg.CatalogPath != "" {
		syncer := catalog.NewSyncer(integrations, tools, perms, providers, cfg.CatalogPath,
			time.Duration(cfg.CatalogSyncInterval)*time.Second)
		go syncer.Start(ctx)
	}

	router := api.NewRouter(api.RouterDeps{
		DBPinger:     db,
		Version:      cfg.Version,
		Keys:         keys,
		Users:        users,
		Integrations: integrations,
		Tools:        tools,
		Perms:        perms,
		Credentials:  credService,
		Resolver:     resolver,
		Broker:       broker,
		Validator:    validator,
		BuildTimeout: time.Duration(cfg.BuildTimeout) * time.Second,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting agentgate server", "port", cfg.Port, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

// buildRegistry binds configured OAuth providers to integration slugs. The
// three Google-backed integrations share one client registration but carry
// distinct scope sets.
func buildRegistry(cfg *config.Config) *oauth.Registry {
	reg := oauth.NewRegistry()

	if cfg.Google.ClientID != "" {
		reg.Register("gmail", oauth.NewGoogle(cfg.Google, []string{
			"https://www.googleapis.com/auth/gmail.modify",
		}))
		reg.Register("gcal", oauth.NewGoogle(cfg.Google, []string{
			"https://www.googleapis.com/auth/calendar",
		}))
		reg.Register("gtasks", oauth.NewGoogle(cfg.Google, []string{
			"https://www.googleapis.com/auth/tasks",
		}))
	}
	if cfg.GitHub.ClientID != "" {
		reg.Register("github", oauth.NewGitHub(cfg.GitHub, []string{"repo", "read:user"}))
	}
	if cfg.Notion.ClientID != "" {
		reg.Register("notion", oauth.NewNotion(cfg.Notion))
	}
	if cfg.Slack.ClientID != "" {
		reg.Register("slack", oauth.NewSlack(cfg.Slack))
	}
	if cfg.Jira.ClientID != "" {
		reg.Register("jira", oauth.NewJira(cfg.Jira))
	}

	return reg
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
