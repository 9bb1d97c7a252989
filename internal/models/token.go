package models

import "time"

// RefreshToken is a single-use-per-rotation opaque credential bound to a
// user. State is derived from the timestamp columns, never stored as a flag:
// a token is Active while revoked_at is unset and the expiry lies ahead of
// the clock. Rotation records the successor secret in replaced_by_token.
type RefreshToken struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Token           string     `db:"token" json:"token"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	RevokedAt       *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ReplacedByToken *string    `db:"replaced_by_token" json:"replaced_by_token,omitempty"`
}

// Active reports whether the token can still be redeemed at the given
// instant. Expiry wins over everything: an expired token is inactive even if
// it was never revoked.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// PasswordResetToken is a single-use opaque credential proving email
// ownership, valid for a short fixed window.
type PasswordResetToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"token"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
}

// Valid reports whether the token is still redeemable at the given instant.
func (t *PasswordResetToken) Valid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
