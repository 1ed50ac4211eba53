package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrToolNotFound is returned when a tool record is not found.
var ErrToolNotFound = errors.New("tool not found")

// ErrIntegrationNotFound is returned when an integration slug is not registered.
var ErrIntegrationNotFound = errors.New("integration not found")

// IntegrationRepository provides operations on the integrations table.
type IntegrationRepository interface {
	Upsert(ctx context.Context, in *Integration) error
	Get(ctx context.Context, slug string) (*Integration, error)
	List(ctx context.Context) ([]Integration, error)
}

// ToolRepository provides operations on the tools table.
type ToolRepository interface {
	// Upsert inserts or updates a tool keyed by (integration, name).
	// It reports whether a new row was created.
	Upsert(ctx context.Context, t *Tool) (created bool, err error)
	ListByIntegrations(ctx context.Context, integrations []string) ([]Tool, error)
	GetByRef(ctx context.Context, integration, name string) (*Tool, error)
}

// PermissionRepository provides operations on the organization and user
// tool permission tables. Absence of a row means "allowed"; once a row
// exists it is authoritative.
type PermissionRepository interface {
	// OrgOverrides returns the explicit org-level rows for the given tools.
	OrgOverrides(ctx context.Context, toolIDs []uuid.UUID) (map[uuid.UUID]bool, error)

	// UserOverrides returns the explicit user-level rows for the given tools.
	UserOverrides(ctx context.Context, userEmail string, toolIDs []uuid.UUID) (map[uuid.UUID]bool, error)

	// CreateOrgDefault writes the initial org-level row for a newly
	// registered tool. It is a no-op when a row already exists.
	CreateOrgDefault(ctx context.Context, toolID uuid.UUID, enabled bool) error

	// SetOrgPermission and SetUserPermission write explicit overrides.
	// They are driven by the admin surface.
	SetOrgPermission(ctx context.Context, toolID uuid.UUID, enabled bool) error
	SetUserPermission(ctx context.Context, userEmail string, toolID uuid.UUID, enabled bool) error
}
