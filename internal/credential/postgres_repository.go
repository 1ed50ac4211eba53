package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const credentialColumns = `user_email, integration, is_authorized, is_enabled,
	authorized_at, access_token, refresh_token, expires_at, created_at, updated_at`

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

func scanCredential(row pgx.Row) (*Credential, error) {
	var c Credential
	err := row.Scan(
		&c.UserEmail, &c.Integration, &c.IsAuthorized, &c.IsEnabled,
		&c.AuthorizedAt, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("scanning credential: %w", err)
	}
	return &c, nil
}

// Get retrieves a credential by (user, integration).
func (r *PostgresRepository) Get(ctx context.Context, userEmail, integration string) (*Credential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM user_credentials
		WHERE user_email = $1 AND integration = $2`

	return scanCredential(r.pool.QueryRow(ctx, query, userEmail, integration))
}

// GetOrCreate returns the credential row, lazily creating it with defaults
// on first lookup.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, userEmail, integration string, defaultEnabled bool) (*Credential, error) {
	query := `
		INSERT INTO user_credentials (user_email, integration, is_enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_email, integration) DO UPDATE
		SET user_email = EXCLUDED.user_email
		RETURNING ` + credentialColumns

	return scanCredential(r.pool.QueryRow(ctx, query, userEmail, integration, defaultEnabled))
}

// ListEnabledAuthorized returns integrations the user has both enabled and
// authorized.
func (r *PostgresRepository) ListEnabledAuthorized(ctx context.Context, userEmail string) ([]string, error) {
	query := `
		SELECT integration
		FROM user_credentials
		WHERE user_email = $1 AND is_enabled = TRUE AND is_authorized = TRUE
		ORDER BY integration ASC`

	rows, err := r.pool.Query(ctx, query, userEmail)
	if err != nil {
		return nil, fmt.Errorf("listing authorized integrations: %w", err)
	}
	defer rows.Close()

	var integrations []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scanning integration slug: %w", err)
		}
		integrations = append(integrations, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credential rows: %w", err)
	}

	if integrations == nil {
		integrations = []string{}
	}

	return integrations, nil
}

// SaveAuthorization stores fresh token ciphertext and marks the credential
// authorized, creating the row if the user never touched this integration.
func (r *PostgresRepository) SaveAuthorization(ctx context.Context, userEmail, integration, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	query := `
		INSERT INTO user_credentials
			(user_email, integration, is_authorized, authorized_at, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), $3, $4, $5, NOW())
		ON CONFLICT (user_email, integration) DO UPDATE
		SET is_authorized = TRUE,
		    authorized_at = NOW(),
		    access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, userEmail, integration, accessToken, refreshToken, expiresAt); err != nil {
		return fmt.Errorf("saving authorization: %w", err)
	}

	return nil
}

// UpdateTokens runs fn under a SELECT ... FOR UPDATE row lock and persists
// the returned update in the same transaction, so concurrent refreshes of
// the same (user, integration) pair serialize and cannot clobber a rotated
// refresh token.
func (r *PostgresRepository) UpdateTokens(ctx context.Context, userEmail, integration string, fn func(cur *Credential) (*TokenUpdate, error)) (*Credential, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning token update: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + credentialColumns + `
		FROM user_credentials
		WHERE user_email = $1 AND integration = $2
		FOR UPDATE`

	cur, err := scanCredential(tx.QueryRow(ctx, query, userEmail, integration))
	if err != nil {
		return nil, err
	}

	update, err := fn(cur)
	if err != nil {
		return nil, err
	}

	if update == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing token update: %w", err)
		}
		return cur, nil
	}

	updateQuery := `
		UPDATE user_credentials
		SET access_token = $3,
		    refresh_token = COALESCE($4, refresh_token),
		    expires_at = $5,
		    updated_at = NOW()
		WHERE user_email = $1 AND integration = $2
		RETURNING ` + credentialColumns

	updated, err := scanCredential(tx.QueryRow(ctx, updateQuery,
		userEmail, integration, update.AccessToken, update.RefreshToken, update.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("persisting token update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing token update: %w", err)
	}

	return updated, nil
}

// SetEnabled flips the admin-controlled enabled flag.
func (r *PostgresRepository) SetEnabled(ctx context.Context, userEmail, integration string, enabled bool) error {
	query := `
		UPDATE user_credentials
		SET is_enabled = $3, updated_at = NOW()
		WHERE user_email = $1 AND integration = $2`

	result, err := r.pool.Exec(ctx, query, userEmail, integration, enabled)
	if err != nil {
		return fmt.Errorf("setting enabled flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

// Revoke clears the authorized flag and nulls all token fields.
func (r *PostgresRepository) Revoke(ctx context.Context, userEmail, integration string) error {
	query := `
		UPDATE user_credentials
		SET is_authorized = FALSE,
		    authorized_at = NULL,
		    access_token = NULL,
		    refresh_token = NULL,
		    expires_at = NULL,
		    updated_at = NOW()
		WHERE user_email = $1 AND integration = $2`

	result, err := r.pool.Exec(ctx, query, userEmail, integration)
	if err != nil {
		return fmt.Errorf("revoking credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	return nil
}
