package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidKey is returned when the provided key does not match any
// active service key.
var ErrInvalidKey = errors.New("invalid or revoked service key")

// Service provides service-key authentication for gateway callers.
type Service struct {
	repo       Repository
	bcryptCost int
}

// NewService creates an apikey Service.
func NewService(repo Repository, bcryptCost int) *Service {
	return &Service{
		repo:       repo,
		bcryptCost: bcryptCost,
	}
}

// GenerateKey creates a new service key. Returns the raw key, its prefix
// (first 8 chars), and the bcrypt hash. The raw key is: 32 random bytes ->
// base64url -> prepend "agw_".
func (s *Service) GenerateKey() (rawKey, prefix, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	rawKey = "agw_" + base64.RawURLEncoding.EncodeToString(b)
	prefix = rawKey[:8]

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(rawKey), s.bcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hashing key: %w", err)
	}
	hash = string(hashBytes)

	return rawKey, prefix, hash, nil
}

// Authenticate resolves a raw key to an Identity. It extracts the prefix,
// looks up candidates, and bcrypt-compares each one.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	if len(rawKey) < 8 {
		return nil, ErrInvalidKey
	}

	prefix := rawKey[:8]

	candidates, err := s.repo.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("finding service keys by prefix: %w", err)
	}

	for _, k := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			return &Identity{KeyID: k.ID, Name: k.Name}, nil
		}
	}

	return nil, ErrInvalidKey
}

// Bootstrap creates the initial service key if the table is empty. Returns
// the raw key (only displayed once). If keys already exist, returns empty
// string.
func (s *Service) Bootstrap(ctx context.Context) (string, error) {
	count, err := s.repo.CountAll(ctx)
	if err != nil {
		return "", fmt.Errorf("counting service keys: %w", err)
	}

	if count > 0 {
		return "", nil
	}

	rawKey, prefix, hash, err := s.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generating bootstrap key: %w", err)
	}

	k := &Key{
		Name:      "bootstrap",
		KeyPrefix: prefix,
		KeyHash:   hash,
	}

	if err := s.repo.Create(ctx, k); err != nil {
		return "", fmt.Errorf("creating bootstrap key: %w", err)
	}

	slog.Info("bootstrap service key created", "key", rawKey)

	return rawKey, nil
}
