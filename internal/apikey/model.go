package apikey

import (
	"time"

	"github.com/google/uuid"
)

// Key represents a row in the service_keys table. Keys authenticate the
// dispatcher and worker processes that call the gateway, not end users.
type Key struct {
	ID        uuid.UUID
	Name      string
	KeyPrefix string
	KeyHash   string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Identity is stored in the request context after authentication.
type Identity struct {
	KeyID uuid.UUID
	Name  string
}
