package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/campus-records-api/internal/models"
)

// IdentityRepository provides database access for registered identities.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new instance of IdentityRepository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// FindByID returns an identity by university ID.
func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	const query = `SELECT id, full_name, email, role, password_hash, salt, active, created_at, updated_at FROM identities WHERE id = $1 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by id: %w", err)
	}
	return &identity, nil
}

// FindByEmail returns an identity by email address.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	const query = `SELECT id, full_name, email, role, password_hash, salt, active, created_at, updated_at FROM identities WHERE email = $1 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by email: %w", err)
	}
	return &identity, nil
}

// ExistsID reports whether a university ID is already taken.
func (r *IdentityRepository) ExistsID(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM identities WHERE id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check identity id: %w", err)
	}
	return true, nil
}

// Create inserts a new identity.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	const query = `INSERT INTO identities (id, full_name, email, role, password_hash, salt, active, created_at, updated_at)
        VALUES (:id, :full_name, :email, :role, :password_hash, :salt, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, identity); err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored hash and salt.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash, salt string, updatedAt time.Time) error {
	const query = `UPDATE identities SET password_hash = $2, salt = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, salt, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdateRole changes the role via administrative action.
func (r *IdentityRepository) UpdateRole(ctx context.Context, id string, role models.Role, updatedAt time.Time) error {
	const query = `UPDATE identities SET role = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, role, updatedAt); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

// Deactivate performs a soft delete. Identities are never removed.
func (r *IdentityRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE identities SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *IdentityRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, identity_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent)
        VALUES (:id, :identity_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *IdentityRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, identity_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *IdentityRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeIdentityRefreshTokens revokes all outstanding tokens for an identity.
func (r *IdentityRepository) RevokeIdentityRefreshTokens(ctx context.Context, identityID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE identity_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, identityID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke identity refresh tokens: %w", err)
	}
	return nil
}
