package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"sigs.k8s.io/yaml"
)

// dangerousKeywords mark tools that default to org-disabled when first
// registered. Matching is by substring on the lowercased tool name.
var dangerousKeywords = []string{"delete", "remove", "destroy", "drop", "truncate", "purge"}

// File is the on-disk catalog format (YAML or JSON).
type File struct {
	Integrations []FileIntegration `json:"integrations"`
}

// FileIntegration describes one integration and its tools in the catalog file.
type FileIntegration struct {
	Slug           string     `json:"slug"`
	Name           string     `json:"name"`
	RequiresAuth   bool       `json:"requires_auth"`
	DefaultEnabled bool       `json:"default_enabled"`
	Tools          []FileTool `json:"tools"`
}

// FileTool describes one tool in the catalog file.
type FileTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SyncStats summarizes one catalog sync run.
type SyncStats struct {
	Integrations int
	Created      int
	Updated      int
	Unconfigured int
}

// ProviderChecker reports whether an OAuth provider is registered for an
// integration slug. Satisfied by oauth.Registry.
type ProviderChecker interface {
	Has(slug string) bool
}

// Syncer reconciles the catalog file into the tools and permission tables.
type Syncer struct {
	integrations IntegrationRepository
	tools        ToolRepository
	perms        PermissionRepository
	providers    ProviderChecker
	path         string
	interval     time.Duration
}

// NewSyncer creates a catalog Syncer reading from the given file path.
func NewSyncer(integrations IntegrationRepository, tools ToolRepository, perms PermissionRepository, providers ProviderChecker, path string, interval time.Duration) *Syncer {
	return &Syncer{
		integrations: integrations,
		tools:        tools,
		perms:        perms,
		providers:    providers,
		path:         path,
		interval:     interval,
	}
}

// Start runs an initial sync and then re-syncs on the configured interval.
// It blocks until ctx is cancelled.
func (s *Syncer) Start(ctx context.Context) {
	slog.Info("catalog syncer started", "path", s.path, "interval", s.interval.String())

	if _, err := s.SyncOnce(ctx); err != nil {
		slog.Error("catalog sync failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("catalog syncer stopped")
			return
		case <-ticker.C:
			if _, err := s.SyncOnce(ctx); err != nil {
				slog.Error("catalog sync failed", "error", err)
			}
		}
	}
}

// SyncOnce loads the catalog file and upserts integrations and tools.
// Newly registered tools get their default org-level permission row
// (enabled unless dangerous); existing rows are never rewritten here.
func (s *Syncer) SyncOnce(ctx context.Context) (SyncStats, error) {
	var stats SyncStats

	data, err := os.ReadFile(s.path)
	if err != nil {
		return stats, fmt.Errorf("reading catalog file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return stats, fmt.Errorf("parsing catalog file: %w", err)
	}

	for _, fi := range file.Integrations {
		if fi.Slug == "" {
			return stats, fmt.Errorf("catalog entry missing slug (name %q)", fi.Name)
		}

		in := &Integration{
			Slug:           fi.Slug,
			Name:           fi.Name,
			RequiresAuth:   fi.RequiresAuth,
			DefaultEnabled: fi.DefaultEnabled,
		}
		if err := s.integrations.Upsert(ctx, in); err != nil {
			return stats, fmt.Errorf("syncing integration %q: %w", fi.Slug, err)
		}
		stats.Integrations++

		// Users cannot authorize an integration that has no provider bound;
		// surface the mismatch at sync time instead of at first authorize.
		if fi.RequiresAuth && !s.providers.Has(fi.Slug) {
			slog.Warn("no oauth provider registered for catalog integration", "integration", fi.Slug)
			stats.Unconfigured++
		}

		for _, ft := range fi.Tools {
			dangerous := IsDangerous(ft.Name)

			t := &Tool{
				Integration: fi.Slug,
				Name:        ft.Name,
				Description: ft.Description,
				IsDangerous: dangerous,
			}
			created, err := s.tools.Upsert(ctx, t)
			if err != nil {
				return stats, fmt.Errorf("syncing tool %q: %w", t.Ref(), err)
			}

			if created {
				if err := s.perms.CreateOrgDefault(ctx, t.ID, !dangerous); err != nil {
					return stats, fmt.Errorf("creating org default for %q: %w", t.Ref(), err)
				}
				stats.Created++
			} else {
				stats.Updated++
			}
		}
	}

	slog.Info("catalog sync complete",
		"integrations", stats.Integrations,
		"created", stats.Created,
		"updated", stats.Updated,
		"unconfigured", stats.Unconfigured)

	return stats, nil
}

// IsDangerous reports whether a tool name matches the dangerous keyword list.
func IsDangerous(toolName string) bool {
	lower := strings.ToLower(toolName)
	for _, kw := range dangerousKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
