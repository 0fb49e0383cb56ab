package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusops/campus-records-api/internal/models"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
)

type credentialRepository interface {
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	ExistsID(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, identity *models.Identity) error
	UpdatePassword(ctx context.Context, id, passwordHash, salt string, updatedAt time.Time) error
	UpdateRole(ctx context.Context, id string, role models.Role, updatedAt time.Time) error
	Deactivate(ctx context.Context, id string) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	RevokeIdentityRefreshTokens(ctx context.Context, identityID string) error
}

// AttemptStore counts consecutive failed logins per client channel.
type AttemptStore interface {
	Increment(ctx context.Context, channel string) (int, error)
	Count(ctx context.Context, channel string) (int, error)
	Reset(ctx context.Context, channel string) error
}

type auditSink interface {
	Record(level, message, channel string)
}

type securityMetrics interface {
	CountLoginFailure()
	CountLockout()
}

// idDigits is the number of random digits after the institutional prefix.
// Digits are drawn from 1-9 so IDs never contain a zero.
const idDigits = 6

// idGenerationAttempts bounds collision retries before giving up.
const idGenerationAttempts = 5

// CredentialConfig defines configuration for the credential core.
type CredentialConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	IDPrefix           string
	SaltLength         int
	LockoutThreshold   int
	StoreTimeout       time.Duration
}

// CredentialService owns identity creation, password protection at rest, and
// session establishment.
type CredentialService struct {
	repo      credentialRepository
	attempts  AttemptStore
	audit     auditSink
	metrics   securityMetrics
	validator *validator.Validate
	logger    *zap.Logger
	config    CredentialConfig
}

// NewCredentialService constructs a CredentialService instance. The metrics
// sink is optional; pass nil when instrumentation is not wanted.
func NewCredentialService(repo credentialRepository, attempts AttemptStore, audit auditSink, metrics securityMetrics, validate *validator.Validate, logger *zap.Logger, config CredentialConfig) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.IDPrefix == "" {
		config.IDPrefix = "60"
	}
	if config.SaltLength <= 0 {
		config.SaltLength = 16
	}
	if config.LockoutThreshold <= 0 {
		config.LockoutThreshold = 3
	}
	return &CredentialService{repo: repo, attempts: attempts, audit: audit, metrics: metrics, validator: validate, logger: logger, config: config}
}

// GenerateSalt produces a cryptographically random salt rendered as a
// fixed-length base64 string.
func (s *CredentialService) GenerateSalt() (string, error) {
	buf := make([]byte, s.config.SaltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// GenerateUniversityID produces an id of the fixed institutional format: the
// two-character prefix followed by six random digits, each drawn uniformly
// from 1-9.
func (s *CredentialService) GenerateUniversityID() (string, error) {
	var b strings.Builder
	b.WriteString(s.config.IDPrefix)
	for i := 0; i < idDigits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(9))
		if err != nil {
			return "", fmt.Errorf("generate university id: %w", err)
		}
		fmt.Fprintf(&b, "%d", n.Int64()+1)
	}
	return b.String(), nil
}

// HashPassword computes the SHA-256 digest of password||salt as lowercase hex.
// The function is deterministic so verification recomputes the digest.
func (s *CredentialService) HashPassword(password, salt string) string {
	digest := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(digest[:])
}

// Register creates a new identity and returns the assigned university ID.
// Self-registration never creates an admin account.
func (s *CredentialService) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	if _, err := s.repo.FindByEmail(storeCtx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "failed to check email uniqueness")
	}

	id, err := s.uniqueUniversityID(storeCtx)
	if err != nil {
		return nil, err
	}

	salt, err := s.GenerateSalt()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate salt")
	}

	identity := &models.Identity{
		ID:           id,
		FullName:     req.FullName,
		Email:        email,
		Role:         req.Role,
		PasswordHash: s.HashPassword(req.Password, salt),
		Salt:         salt,
		Active:       true,
	}

	// The FindByEmail probe above races concurrent registrations; the unique
	// constraint is the authority and still maps to a conflict.
	if err := s.repo.Create(storeCtx, identity); err != nil {
		if uniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, storeError(err, "failed to create identity")
	}

	s.audit.Record(models.AuditLevelInfo, fmt.Sprintf("identity registered: %s (%s)", identity.ID, identity.Role), email)

	return &models.RegisterResponse{ID: identity.ID, FullName: identity.FullName, Email: identity.Email, Role: identity.Role}, nil
}

// Login authenticates by university ID and password and issues tokens. An
// unknown id and a wrong password fail with the identical error. After the
// lockout threshold of consecutive failures on a channel, further attempts
// are rejected until the counter decays, correct credentials or not.
func (s *CredentialService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	channel := req.IP
	if channel == "" {
		channel = "unknown"
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	count, err := s.attempts.Count(storeCtx, channel)
	if err != nil {
		s.logger.Warn("failed to read attempt counter", zap.Error(err))
	}
	if count >= s.config.LockoutThreshold {
		s.audit.Record(models.AuditLevelSevere, "login rejected: channel locked out", channel)
		if s.metrics != nil {
			s.metrics.CountLockout()
		}
		return nil, appErrors.Clone(appErrors.ErrLockedOut, "too many failed attempts, try again later")
	}

	identity, err := s.repo.FindByID(storeCtx, req.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.failLogin(storeCtx, channel, req.ID)
		}
		return nil, storeError(err, "failed to fetch identity")
	}

	if !identity.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	computed := s.HashPassword(req.Password, identity.Salt)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(identity.PasswordHash)) != 1 {
		return nil, s.failLogin(storeCtx, channel, req.ID)
	}

	if err := s.attempts.Reset(storeCtx, channel); err != nil {
		s.logger.Warn("failed to reset attempt counter", zap.Error(err))
	}

	accessToken, err := s.generateAccessToken(identity)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, err := s.issueRefreshToken(storeCtx, identity.ID, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.audit.Record(models.AuditLevelInfo, fmt.Sprintf("login succeeded: %s", identity.ID), channel)

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
		Identity: models.IdentityInfo{
			ID:       identity.ID,
			FullName: identity.FullName,
			Email:    identity.Email,
			Role:     identity.Role,
		},
	}, nil
}

// failLogin bumps the channel counter and returns the shared credential error.
func (s *CredentialService) failLogin(ctx context.Context, channel, attemptedID string) error {
	count, err := s.attempts.Increment(ctx, channel)
	if err != nil {
		s.logger.Warn("failed to increment attempt counter", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.CountLoginFailure()
	}
	level := models.AuditLevelWarning
	if count >= s.config.LockoutThreshold {
		level = models.AuditLevelSevere
	}
	s.audit.Record(level, fmt.Sprintf("login failed for id %q (attempt %d)", attemptedID, count), channel)
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid id or password")
}

// RefreshToken exchanges a refresh token for a rotated pair.
func (s *CredentialService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	stored, err := s.repo.FindRefreshToken(storeCtx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, storeError(err, "failed to fetch refresh token")
	}

	if stored.Revoked || time.Now().UTC().After(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	identity, err := s.repo.FindByID(storeCtx, stored.IdentityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated identity no longer exists")
		}
		return nil, storeError(err, "failed to load identity")
	}

	if !identity.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if err := s.repo.RevokeRefreshToken(storeCtx, stored.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	accessToken, err := s.generateAccessToken(identity)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}

	rotated, err := s.issueRefreshToken(storeCtx, identity.ID, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	return &models.RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: rotated.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Logout revokes the provided refresh token, ending the session.
func (s *CredentialService) Logout(ctx context.Context, refreshToken, identityID, channel string) error {
	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	stored, err := s.repo.FindRefreshToken(storeCtx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return storeError(err, "failed to load refresh token")
	}

	if stored.IdentityID != identityID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to identity")
	}

	if err := s.repo.RevokeRefreshToken(storeCtx, stored.ID, time.Now().UTC()); err != nil {
		return storeError(err, "failed to revoke refresh token")
	}

	s.audit.Record(models.AuditLevelInfo, fmt.Sprintf("logout: %s", identityID), channel)
	return nil
}

// ChangePassword verifies the old password and stores a new salt and hash.
// All outstanding sessions are revoked.
func (s *CredentialService) ChangePassword(ctx context.Context, identityID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	identity, err := s.repo.FindByID(storeCtx, identityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "identity not found")
		}
		return storeError(err, "failed to load identity")
	}

	computed := s.HashPassword(req.OldPassword, identity.Salt)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(identity.PasswordHash)) != 1 {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	salt, err := s.GenerateSalt()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate salt")
	}

	if err := s.repo.UpdatePassword(storeCtx, identityID, s.HashPassword(req.NewPassword, salt), salt, time.Now().UTC()); err != nil {
		return storeError(err, "failed to update password")
	}

	if err := s.repo.RevokeIdentityRefreshTokens(storeCtx, identityID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}

	s.audit.Record(models.AuditLevelInfo, fmt.Sprintf("password changed: %s", identityID), identityID)
	return nil
}

// SetRole reassigns an identity's role. Outstanding sessions are revoked so
// no token keeps claims for the old role.
func (s *CredentialService) SetRole(ctx context.Context, identityID string, req models.SetRoleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	identity, err := s.repo.FindByID(storeCtx, identityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "identity not found")
		}
		return storeError(err, "failed to load identity")
	}

	if identity.Role == req.Role {
		return nil
	}

	if err := s.repo.UpdateRole(storeCtx, identityID, req.Role, time.Now().UTC()); err != nil {
		return storeError(err, "failed to update role")
	}

	if err := s.repo.RevokeIdentityRefreshTokens(storeCtx, identityID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after role change", zap.Error(err))
	}

	s.audit.Record(models.AuditLevelWarning, fmt.Sprintf("role changed: %s %s -> %s", identityID, identity.Role, req.Role), identityID)
	return nil
}

// Deactivate disables an identity without removing it. Enrollments, payments,
// and audit history stay intact; logins are refused until reactivated out of
// band.
func (s *CredentialService) Deactivate(ctx context.Context, identityID string) error {
	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	identity, err := s.repo.FindByID(storeCtx, identityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "identity not found")
		}
		return storeError(err, "failed to load identity")
	}

	if !identity.Active {
		return nil
	}

	if err := s.repo.Deactivate(storeCtx, identityID); err != nil {
		return storeError(err, "failed to deactivate identity")
	}

	if err := s.repo.RevokeIdentityRefreshTokens(storeCtx, identityID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after deactivation", zap.Error(err))
	}

	s.audit.Record(models.AuditLevelWarning, fmt.Sprintf("identity deactivated: %s", identityID), identityID)
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *CredentialService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// uniqueUniversityID generates IDs until one is free, regenerating on
// collision up to the attempt bound.
func (s *CredentialService) uniqueUniversityID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < idGenerationAttempts; attempt++ {
		id, err := s.GenerateUniversityID()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate university id")
		}
		taken, err := s.repo.ExistsID(ctx, id)
		if err != nil {
			return "", storeError(err, "failed to check id uniqueness")
		}
		if !taken {
			return id, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrStoreUnavailable, "could not allocate a unique university id")
}

func (s *CredentialService) generateAccessToken(identity *models.Identity) (string, error) {
	issuedAt := time.Now().UTC()
	claims := &models.JWTClaims{
		IdentityID: identity.ID,
		Role:       identity.Role,
		Email:      identity.Email,
		FullName:   identity.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *CredentialService) issueRefreshToken(ctx context.Context, identityID, ip, userAgent string) (*models.RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	token := &models.RefreshToken{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Token:      base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt:  time.Now().UTC().Add(s.config.RefreshTokenExpiry),
		CreatedAt:  time.Now().UTC(),
		IPAddress:  ip,
		UserAgent:  userAgent,
	}

	if err := s.repo.CreateRefreshToken(ctx, token); err != nil {
		return nil, storeError(err, "failed to persist refresh token")
	}
	return token, nil
}
