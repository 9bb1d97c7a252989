package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipehub/recipes-api/internal/models"
)

func TestIssueEncodesIdentity(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		Secret:   "secret",
		Issuer:   "recipes-api",
		Audience: []string{"recipes-app"},
		Expiry:   15 * time.Minute,
	})

	user := &models.User{ID: "u1", Username: "alice", Email: "alice@x.com"}
	issuedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	signed, expiresAt, err := issuer.Issue(user, issuedAt)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(15*time.Minute), expiresAt)

	claims := &models.AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return issuedAt.Add(time.Minute) }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, "recipes-api", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"recipes-app"}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())
}

func TestIssueUniqueTokenIDs(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{Secret: "secret", Expiry: time.Minute})
	user := &models.User{ID: "u1", Username: "alice", Email: "alice@x.com"}
	issuedAt := time.Now().UTC()

	first, _, err := issuer.Issue(user, issuedAt)
	require.NoError(t, err)
	second, _, err := issuer.Issue(user, issuedAt)
	require.NoError(t, err)

	firstClaims := &models.AccessTokenClaims{}
	_, err = jwt.ParseWithClaims(first, firstClaims, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	secondClaims := &models.AccessTokenClaims{}
	_, err = jwt.ParseWithClaims(second, secondClaims, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)

	assert.NotEqual(t, firstClaims.ID, secondClaims.ID)
}

func TestIssueRejectedAfterExpiry(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{Secret: "secret", Expiry: 15 * time.Minute})
	user := &models.User{ID: "u1", Username: "alice", Email: "alice@x.com"}
	issuedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	signed, _, err := issuer.Issue(user, issuedAt)
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(signed, &models.AccessTokenClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return issuedAt.Add(16 * time.Minute) }))
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
