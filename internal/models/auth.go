package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest holds the self-registration payload. Only student and
// instructor accounts can be created this way; admin accounts are seeded
// out of band.
type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     Role   `json:"role" validate:"required,oneof=STUDENT INSTRUCTOR"`
}

// RegisterResponse returns the assigned university ID for the caller to
// display. The plaintext password is never retained.
type RegisterResponse struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// LoginRequest holds credentials for authenticating by university ID.
type LoginRequest struct {
	ID        string `json:"id" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and identity info.
type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	Identity     IdentityInfo `json:"identity"`
	IssuedAt     time.Time    `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the rotated token pair.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// SetRoleRequest is the administrative payload for reassigning a role.
type SetRoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=STUDENT INSTRUCTOR ADMIN"`
}

// ChangePasswordRequest payload for updating the stored password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// IdentityInfo describes the authenticated identity in responses.
type IdentityInfo struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// RefreshToken is a persisted, revocable session handle.
type RefreshToken struct {
	ID         string     `db:"id" json:"id"`
	IdentityID string     `db:"identity_id" json:"identity_id"`
	Token      string     `db:"token" json:"token"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	Revoked    bool       `db:"revoked" json:"revoked"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress  string     `db:"ip_address" json:"ip_address"`
	UserAgent  string     `db:"user_agent" json:"user_agent"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	IdentityID string `json:"identity_id"`
	Role       Role   `json:"role"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	jwt.RegisteredClaims
}
