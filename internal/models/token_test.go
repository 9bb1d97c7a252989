package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshTokenActive(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	revoked := now.Add(-time.Minute)

	cases := []struct {
		name   string
		token  RefreshToken
		active bool
	}{
		{"active", RefreshToken{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", RefreshToken{ExpiresAt: now.Add(-time.Second)}, false},
		{"expired at boundary", RefreshToken{ExpiresAt: now}, false},
		{"revoked", RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}, false},
		{"revoked and expired", RefreshToken{ExpiresAt: now.Add(-time.Hour), RevokedAt: &revoked}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.active, tc.token.Active(now))
		})
	}
}

func TestRefreshTokenExpiryIndependentOfRevocation(t *testing.T) {
	now := time.Now().UTC()
	token := RefreshToken{ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, token.Active(now))
}

func TestPasswordResetTokenValid(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	used := now.Add(-time.Minute)

	assert.True(t, (&PasswordResetToken{ExpiresAt: now.Add(time.Hour)}).Valid(now))
	assert.False(t, (&PasswordResetToken{ExpiresAt: now.Add(-time.Second)}).Valid(now))
	assert.False(t, (&PasswordResetToken{ExpiresAt: now.Add(time.Hour), UsedAt: &used}).Valid(now))
}
