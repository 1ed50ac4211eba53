package apikey

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new service key record.
func (r *PostgresRepository) Create(ctx context.Context, k *Key) error {
	query := `
		INSERT INTO service_keys (name, key_prefix, key_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query, k.Name, k.KeyPrefix, k.KeyHash).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting service key: %w", err)
	}

	return nil
}

// FindByPrefix returns active (non-revoked) keys matching the given prefix.
func (r *PostgresRepository) FindByPrefix(ctx context.Context, prefix string) ([]Key, error) {
	query := `
		SELECT id, name, key_prefix, key_hash, created_at, revoked_at
		FROM service_keys
		WHERE key_prefix = $1 AND revoked_at IS NULL`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("finding service keys by prefix: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		err := rows.Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.KeyHash, &k.CreatedAt, &k.RevokedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning service key row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service key rows: %w", err)
	}

	if keys == nil {
		keys = []Key{}
	}

	return keys, nil
}

// Revoke sets revoked_at on a key. Returns ErrKeyNotFound when the key
// does not exist or is already revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE service_keys
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoking service key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// CountAll returns the total number of keys, including revoked ones.
func (r *PostgresRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM service_keys").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting service keys: %w", err)
	}
	return count, nil
}
