package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentgate/agentgate/internal/catalog"
	"github.com/agentgate/agentgate/internal/credential"
	"github.com/agentgate/agentgate/internal/user"
)

// ErrPermissionDenied is returned when the resolved tool set excludes the
// requested tool. It is an expected negative outcome, distinct from the
// infrastructure errors the resolver wraps and returns as-is.
var ErrPermissionDenied = errors.New("tool not permitted for user")

// ErrInvalidToolRef is returned for references not of the form
// "integration:tool".
var ErrInvalidToolRef = errors.New("invalid tool reference")

// Resolver computes the set of callable tools for a user by intersecting
// four permission layers: integration enabled, integration authorized,
// org-level tool permission, user-level tool permission. Any layer denying
// removes the tool; no layer can grant on its own.
type Resolver struct {
	users        user.Repository
	creds        credential.Repository
	tools        catalog.ToolRepository
	integrations catalog.IntegrationRepository
	perms        catalog.PermissionRepository
}

// NewResolver creates a permission Resolver.
func NewResolver(
	users user.Repository,
	creds credential.Repository,
	tools catalog.ToolRepository,
	integrations catalog.IntegrationRepository,
	perms catalog.PermissionRepository,
) *Resolver {
	return &Resolver{
		users:        users,
		creds:        creds,
		tools:        tools,
		integrations: integrations,
		perms:        perms,
	}
}

// ResolveAllowedTools returns the "integration:tool" references the user
// may call. It is a deterministic, side-effect-free read. On any data
// access error it fails closed: no partial set is ever returned.
func (r *Resolver) ResolveAllowedTools(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	integrations, err := r.creds.ListEnabledAuthorized(ctx, u.Email)
	if err != nil {
		return nil, fmt.Errorf("listing authorized integrations: %w", err)
	}

	allowed := make(map[string]struct{})
	if len(integrations) == 0 {
		return allowed, nil
	}

	tools, err := r.tools.ListByIntegrations(ctx, integrations)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	toolIDs := make([]uuid.UUID, len(tools))
	for i := range tools {
		toolIDs[i] = tools[i].ID
	}

	orgOverrides, err := r.perms.OrgOverrides(ctx, toolIDs)
	if err != nil {
		return nil, fmt.Errorf("loading org tool permissions: %w", err)
	}

	userOverrides, err := r.perms.UserOverrides(ctx, u.Email, toolIDs)
	if err != nil {
		return nil, fmt.Errorf("loading user tool permissions: %w", err)
	}

	for i := range tools {
		t := &tools[i]

		// Absent rows mean "allowed"; explicit rows are authoritative.
		if enabled, ok := orgOverrides[t.ID]; ok && !enabled {
			continue
		}
		if enabled, ok := userOverrides[t.ID]; ok && !enabled {
			continue
		}

		allowed[t.Ref()] = struct{}{}
	}

	return allowed, nil
}

// CheckTool gates a single invocation. It returns ErrPermissionDenied when
// the resolved set excludes the reference, catalog.ErrIntegrationNotFound
// for an unregistered integration slug, and ErrInvalidToolRef for a
// reference that does not parse.
func (r *Resolver) CheckTool(ctx context.Context, userID uuid.UUID, ref string) error {
	integration, tool, ok := strings.Cut(ref, ":")
	if !ok || integration == "" || tool == "" {
		return fmt.Errorf("%w: %q", ErrInvalidToolRef, ref)
	}

	if _, err := r.integrations.Get(ctx, integration); err != nil {
		if errors.Is(err, catalog.ErrIntegrationNotFound) {
			return fmt.Errorf("%w: %q", catalog.ErrIntegrationNotFound, integration)
		}
		return fmt.Errorf("checking integration: %w", err)
	}

	allowed, err := r.ResolveAllowedTools(ctx, userID)
	if err != nil {
		return err
	}

	if _, ok := allowed[ref]; !ok {
		return fmt.Errorf("%w: %q", ErrPermissionDenied, ref)
	}

	return nil
}
