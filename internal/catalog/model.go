package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Integration describes one external SaaS connector.
type Integration struct {
	Slug           string
	Name           string
	RequiresAuth   bool
	DefaultEnabled bool
	UpdatedAt      time.Time
}

// Tool represents a row in the tools table. Each tool belongs to exactly
// one integration. Dangerous tools default to disabled at the organization
// level when first registered.
type Tool struct {
	ID          uuid.UUID
	Integration string
	Name        string
	Description string
	IsDangerous bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ref returns the canonical "integration:tool" reference.
func (t *Tool) Ref() string {
	return t.Integration + ":" + t.Name
}
