package user

import (
	"time"

	"github.com/google/uuid"
)

// User represents a row in the users table. Credentials and tool
// permissions are keyed by the user's email.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	CreatedAt time.Time
}
