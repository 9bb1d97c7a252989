package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/recipehub/recipes-api/internal/models"
)

// ErrTokenRotated is returned when a rotation loses the race against a
// concurrent refresh of the same token.
var ErrTokenRotated = errors.New("refresh token already rotated")

// AuthRepository provides database access for credentials, refresh tokens
// and password reset tokens.
type AuthRepository struct {
	db *sqlx.DB
}

// NewAuthRepository creates a new instance of AuthRepository.
func NewAuthRepository(db *sqlx.DB) *AuthRepository {
	return &AuthRepository{db: db}
}

const userColumns = `id, username, email, password_hash, bio, profile_image_url, banner_image_url, active, email_verified, last_login_at, created_at, updated_at`

// FindUserByID returns a user by identifier.
func (r *AuthRepository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindUserByEmail returns a user by exact email match.
func (r *AuthRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindUserByUsername returns a user by exact username match.
func (r *AuthRepository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

// EmailExists reports whether a user with the given email exists.
func (r *AuthRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, fmt.Errorf("email exists: %w", err)
	}
	return exists, nil
}

// UsernameExists reports whether a user with the given username exists.
func (r *AuthRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, username); err != nil {
		return false, fmt.Errorf("username exists: %w", err)
	}
	return exists, nil
}

// CreateUser inserts a new user.
func (r *AuthRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	const query = `INSERT INTO users (id, username, email, password_hash, bio, profile_image_url, banner_image_url, active, email_verified, last_login_at, created_at, updated_at) VALUES (:id, :username, :email, :password_hash, :bio, :profile_image_url, :banner_image_url, :active, :email_verified, :last_login_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login_at timestamp for a user.
func (r *AuthRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login_at = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *AuthRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *AuthRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked_at, replaced_by_token) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked_at, :replaced_by_token)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by its secret.
func (r *AuthRepository) FindRefreshToken(ctx context.Context, secret string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked_at, replaced_by_token FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, secret); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RotateRefreshToken marks the old token rotated and inserts its successor
// in one transaction. The update is conditional on the old token still being
// unrevoked; losing that race yields ErrTokenRotated and inserts nothing.
func (r *AuthRepository) RotateRefreshToken(ctx context.Context, oldID string, revokedAt time.Time, successor *models.RefreshToken) error {
	if successor.ID == "" {
		successor.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const revoke = `UPDATE refresh_tokens SET revoked_at = $2, replaced_by_token = $3 WHERE id = $1 AND revoked_at IS NULL`
	res, err := tx.ExecContext(ctx, revoke, oldID, revokedAt, successor.Token)
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotation rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTokenRotated
	}

	const insert = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked_at, replaced_by_token) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked_at, :replaced_by_token)`
	if _, err := tx.NamedExecContext(ctx, insert, successor); err != nil {
		return fmt.Errorf("insert successor token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

// RevokeAllRefreshTokens revokes every active refresh token owned by the
// user as a single statement. Revoking an already-revoked set is a no-op.
func (r *AuthRepository) RevokeAllRefreshTokens(ctx context.Context, userID string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, revokedAt); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreatePasswordResetToken persists a password reset token.
func (r *AuthRepository) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO password_reset_tokens (id, user_id, token, expires_at, created_at, used_at) VALUES (:id, :user_id, :token, :expires_at, :created_at, :used_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create password reset token: %w", err)
	}
	return nil
}

// FindPasswordResetToken returns a reset token by its secret.
func (r *AuthRepository) FindPasswordResetToken(ctx context.Context, secret string) (*models.PasswordResetToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, used_at FROM password_reset_tokens WHERE token = $1 LIMIT 1`
	var token models.PasswordResetToken
	if err := r.db.GetContext(ctx, &token, query, secret); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find password reset token: %w", err)
	}
	return &token, nil
}

// MarkPasswordResetTokenUsed stamps the token as consumed.
func (r *AuthRepository) MarkPasswordResetTokenUsed(ctx context.Context, id string, usedAt time.Time) error {
	const query = `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, usedAt); err != nil {
		return fmt.Errorf("mark password reset token used: %w", err)
	}
	return nil
}

// InvalidatePasswordResetTokens marks every outstanding reset token for the
// user as used, so at most one valid token exists per user at any time.
func (r *AuthRepository) InvalidatePasswordResetTokens(ctx context.Context, userID string, usedAt time.Time) error {
	const query = `UPDATE password_reset_tokens SET used_at = $2 WHERE user_id = $1 AND used_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, usedAt); err != nil {
		return fmt.Errorf("invalidate password reset tokens: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *AuthRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns the newest audit entries for a user, capped at limit.
func (r *AuthRepository) ListAuditLogs(ctx context.Context, userID string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 1000
	}
	const query = `SELECT id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at FROM audit_logs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	logs := []models.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}
