package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/recipehub/recipes-api/internal/models"
)

// TokenIssuerConfig configures access-token minting.
type TokenIssuerConfig struct {
	Secret   string
	Issuer   string
	Audience []string
	Expiry   time.Duration
}

// TokenIssuer mints short-lived signed access tokens. It only mints;
// verification happens in the request-authorization middleware.
type TokenIssuer struct {
	config TokenIssuerConfig
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(config TokenIssuerConfig) *TokenIssuer {
	return &TokenIssuer{config: config}
}

// Issue encodes the user identity into a signed HS256 token with a random
// jti, valid from issuedAt until issuedAt plus the configured expiry.
func (i *TokenIssuer) Issue(user *models.User, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(i.config.Expiry)
	claims := &models.AccessTokenClaims{
		Email:    user.Email,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.config.Issuer,
			Subject:   user.ID,
			Audience:  i.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
