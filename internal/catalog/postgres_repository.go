package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIntegrationRepository implements IntegrationRepository using pgxpool.
type PostgresIntegrationRepository struct {
	pool *pgxpool.Pool
}

// NewIntegrationRepository creates an IntegrationRepository backed by the
// given connection pool.
func NewIntegrationRepository(pool *pgxpool.Pool) IntegrationRepository {
	return &PostgresIntegrationRepository{pool: pool}
}

// Upsert inserts or updates an integration keyed by slug.
func (r *PostgresIntegrationRepository) Upsert(ctx context.Context, in *Integration) error {
	query := `
		INSERT INTO integrations (slug, name, requires_auth, default_enabled, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name,
		    requires_auth = EXCLUDED.requires_auth,
		    default_enabled = EXCLUDED.default_enabled,
		    updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, in.Slug, in.Name, in.RequiresAuth, in.DefaultEnabled); err != nil {
		return fmt.Errorf("upserting integration: %w", err)
	}

	return nil
}

// Get retrieves a single integration by slug.
func (r *PostgresIntegrationRepository) Get(ctx context.Context, slug string) (*Integration, error) {
	query := `
		SELECT slug, name, requires_auth, default_enabled, updated_at
		FROM integrations
		WHERE slug = $1`

	var in Integration
	err := r.pool.QueryRow(ctx, query, slug).Scan(
		&in.Slug, &in.Name, &in.RequiresAuth, &in.DefaultEnabled, &in.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("querying integration: %w", err)
	}

	return &in, nil
}

// List retrieves all integrations ordered by slug.
func (r *PostgresIntegrationRepository) List(ctx context.Context) ([]Integration, error) {
	query := `
		SELECT slug, name, requires_auth, default_enabled, updated_at
		FROM integrations
		ORDER BY slug ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}
	defer rows.Close()

	var integrations []Integration
	for rows.Next() {
		var in Integration
		err := rows.Scan(&in.Slug, &in.Name, &in.RequiresAuth, &in.DefaultEnabled, &in.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning integration row: %w", err)
		}
		integrations = append(integrations, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating integration rows: %w", err)
	}

	if integrations == nil {
		integrations = []Integration{}
	}

	return integrations, nil
}

// PostgresToolRepository implements ToolRepository using pgxpool.
type PostgresToolRepository struct {
	pool *pgxpool.Pool
}

// NewToolRepository creates a ToolRepository backed by the given connection pool.
func NewToolRepository(pool *pgxpool.Pool) ToolRepository {
	return &PostgresToolRepository{pool: pool}
}

// Upsert inserts or updates a tool keyed by (integration, name).
func (r *PostgresToolRepository) Upsert(ctx context.Context, t *Tool) (bool, error) {
	query := `
		INSERT INTO tools (integration, name, description, is_dangerous, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (integration, name) DO UPDATE
		SET description = EXCLUDED.description,
		    is_dangerous = EXCLUDED.is_dangerous,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	var created bool
	err := r.pool.QueryRow(ctx, query, t.Integration, t.Name, t.Description, t.IsDangerous).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upserting tool: %w", err)
	}

	return created, nil
}

// ListByIntegrations retrieves all tools belonging to the given integrations.
func (r *PostgresToolRepository) ListByIntegrations(ctx context.Context, integrations []string) ([]Tool, error) {
	if len(integrations) == 0 {
		return []Tool{}, nil
	}

	query := `
		SELECT id, integration, name, description, is_dangerous, created_at, updated_at
		FROM tools
		WHERE integration = ANY($1)
		ORDER BY integration ASC, name ASC`

	rows, err := r.pool.Query(ctx, query, integrations)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	defer rows.Close()

	var tools []Tool
	for rows.Next() {
		var t Tool
		err := rows.Scan(&t.ID, &t.Integration, &t.Name, &t.Description, &t.IsDangerous, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning tool row: %w", err)
		}
		tools = append(tools, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool rows: %w", err)
	}

	if tools == nil {
		tools = []Tool{}
	}

	return tools, nil
}

// GetByRef retrieves a single tool by (integration, name).
func (r *PostgresToolRepository) GetByRef(ctx context.Context, integration, name string) (*Tool, error) {
	query := `
		SELECT id, integration, name, description, is_dangerous, created_at, updated_at
		FROM tools
		WHERE integration = $1 AND name = $2`

	var t Tool
	err := r.pool.QueryRow(ctx, query, integration, name).Scan(
		&t.ID, &t.Integration, &t.Name, &t.Description, &t.IsDangerous, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrToolNotFound
		}
		return nil, fmt.Errorf("querying tool: %w", err)
	}

	return &t, nil
}

// PostgresPermissionRepository implements PermissionRepository using pgxpool.
type PostgresPermissionRepository struct {
	pool *pgxpool.Pool
}

// NewPermissionRepository creates a PermissionRepository backed by the
// given connection pool.
func NewPermissionRepository(pool *pgxpool.Pool) PermissionRepository {
	return &PostgresPermissionRepository{pool: pool}
}

// OrgOverrides returns the explicit org-level rows for the given tools.
func (r *PostgresPermissionRepository) OrgOverrides(ctx context.Context, toolIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	overrides := make(map[uuid.UUID]bool, len(toolIDs))
	if len(toolIDs) == 0 {
		return overrides, nil
	}

	query := `
		SELECT tool_id, enabled
		FROM organization_tool_permissions
		WHERE tool_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, toolIDs)
	if err != nil {
		return nil, fmt.Errorf("querying org tool permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var enabled bool
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, fmt.Errorf("scanning org permission row: %w", err)
		}
		overrides[id] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating org permission rows: %w", err)
	}

	return overrides, nil
}

// UserOverrides returns the explicit user-level rows for the given tools.
func (r *PostgresPermissionRepository) UserOverrides(ctx context.Context, userEmail string, toolIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	overrides := make(map[uuid.UUID]bool, len(toolIDs))
	if len(toolIDs) == 0 {
		return overrides, nil
	}

	query := `
		SELECT tool_id, enabled
		FROM user_tool_permissions
		WHERE user_email = $1 AND tool_id = ANY($2)`

	rows, err := r.pool.Query(ctx, query, userEmail, toolIDs)
	if err != nil {
		return nil, fmt.Errorf("querying user tool permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var enabled bool
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, fmt.Errorf("scanning user permission row: %w", err)
		}
		overrides[id] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user permission rows: %w", err)
	}

	return overrides, nil
}

// CreateOrgDefault writes the initial org-level row for a tool. Existing
// rows are left untouched.
func (r *PostgresPermissionRepository) CreateOrgDefault(ctx context.Context, toolID uuid.UUID, enabled bool) error {
	query := `
		INSERT INTO organization_tool_permissions (tool_id, enabled)
		VALUES ($1, $2)
		ON CONFLICT (tool_id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, toolID, enabled); err != nil {
		return fmt.Errorf("creating default org permission: %w", err)
	}

	return nil
}

// SetOrgPermission writes an explicit org-level override.
func (r *PostgresPermissionRepository) SetOrgPermission(ctx context.Context, toolID uuid.UUID, enabled bool) error {
	query := `
		INSERT INTO organization_tool_permissions (tool_id, enabled, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tool_id) DO UPDATE
		SET enabled = EXCLUDED.enabled, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, toolID, enabled); err != nil {
		return fmt.Errorf("setting org permission: %w", err)
	}

	return nil
}

// SetUserPermission writes an explicit user-level override.
func (r *PostgresPermissionRepository) SetUserPermission(ctx context.Context, userEmail string, toolID uuid.UUID, enabled bool) error {
	query := `
		INSERT INTO user_tool_permissions (user_email, tool_id, enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_email, tool_id) DO UPDATE
		SET enabled = EXCLUDED.enabled, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, userEmail, toolID, enabled); err != nil {
		return fmt.Errorf("setting user permission: %w", err)
	}

	return nil
}
