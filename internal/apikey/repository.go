package apikey

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrKeyNotFound is returned when a service key record is not found.
var ErrKeyNotFound = errors.New("service key not found")

// Repository provides operations on the service_keys table.
type Repository interface {
	Create(ctx context.Context, k *Key) error
	FindByPrefix(ctx context.Context, prefix string) ([]Key, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	CountAll(ctx context.Context) (int, error)
}
