package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/recipehub/recipes-api/internal/models"
	"github.com/recipehub/recipes-api/internal/repository"
	appErrors "github.com/recipehub/recipes-api/pkg/errors"
	"github.com/recipehub/recipes-api/pkg/security"
)

type mockCredentialStore struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	resetTokens   map[string]*models.PasswordResetToken
	auditLogs     []*models.AuditLog

	lastLoginUpdated bool
}

func newMockStore() *mockCredentialStore {
	return &mockCredentialStore{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
		resetTokens:   make(map[string]*models.PasswordResetToken),
	}
}

func (m *mockCredentialStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCredentialStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCredentialStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCredentialStore) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.FindUserByEmail(ctx, email)
	return err == nil, nil
}

func (m *mockCredentialStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := m.FindUserByUsername(ctx, username)
	return err == nil, nil
}

func (m *mockCredentialStore) CreateUser(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockCredentialStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	if user, ok := m.users[id]; ok {
		user.LastLoginAt = &ts
	}
	return nil
}

func (m *mockCredentialStore) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := m.users[id]; ok {
		user.PasswordHash = passwordHash
		user.UpdatedAt = updatedAt
	}
	return nil
}

func (m *mockCredentialStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockCredentialStore) FindRefreshToken(ctx context.Context, secret string) (*models.RefreshToken, error) {
	if token, ok := m.refreshTokens[secret]; ok {
		return token, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCredentialStore) RotateRefreshToken(ctx context.Context, oldID string, revokedAt time.Time, successor *models.RefreshToken) error {
	for _, token := range m.refreshTokens {
		if token.ID == oldID {
			if token.RevokedAt != nil {
				return repository.ErrTokenRotated
			}
			token.RevokedAt = &revokedAt
			token.ReplacedByToken = &successor.Token
			m.refreshTokens[successor.Token] = successor
			return nil
		}
	}
	return repository.ErrTokenRotated
}

func (m *mockCredentialStore) RevokeAllRefreshTokens(ctx context.Context, userID string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.UserID == userID && token.RevokedAt == nil {
			ts := revokedAt
			token.RevokedAt = &ts
		}
	}
	return nil
}

func (m *mockCredentialStore) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	m.resetTokens[token.Token] = token
	return nil
}

func (m *mockCredentialStore) FindPasswordResetToken(ctx context.Context, secret string) (*models.PasswordResetToken, error) {
	if token, ok := m.resetTokens[secret]; ok {
		return token, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCredentialStore) MarkPasswordResetTokenUsed(ctx context.Context, id string, usedAt time.Time) error {
	for _, token := range m.resetTokens {
		if token.ID == id {
			ts := usedAt
			token.UsedAt = &ts
		}
	}
	return nil
}

func (m *mockCredentialStore) InvalidatePasswordResetTokens(ctx context.Context, userID string, usedAt time.Time) error {
	for _, token := range m.resetTokens {
		if token.UserID == userID && token.UsedAt == nil {
			ts := usedAt
			token.UsedAt = &ts
		}
	}
	return nil
}

func (m *mockCredentialStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *mockCredentialStore) activeTokens(userID string, now time.Time) []*models.RefreshToken {
	var active []*models.RefreshToken
	for _, token := range m.refreshTokens {
		if token.UserID == userID && token.Active(now) {
			active = append(active, token)
		}
	}
	return active
}

func newTestAuthService(store *mockCredentialStore) *AuthService {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		Secret:   "secret",
		Issuer:   "recipes-api",
		Audience: []string{"recipes-app"},
		Expiry:   15 * time.Minute,
	})
	return NewAuthService(store, issuer, validator.New(), zap.NewNop(), AuthServiceConfig{
		RefreshTokenExpiry:  7 * 24 * time.Hour,
		PasswordResetExpiry: time.Hour,
	})
}

func seedUser(store *mockCredentialStore, password string) *models.User {
	hash, _ := security.HashPassword(password)
	user := &models.User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@x.com",
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	store.users[user.ID] = user
	return user
}

func TestRegisterSuccess(t *testing.T) {
	store := newMockStore()
	svc := newTestAuthService(store)

	res, err := svc.Register(context.Background(), models.RegisterRequest{Username: "alice", Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "alice", res.User.Username)
	assert.False(t, res.User.EmailVerified)

	taken, err := store.EmailExists(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = store.UsernameExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, taken)

	created, err := store.FindUserByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.NotEqual(t, "Secret123!", created.PasswordHash)
	assert.Len(t, store.refreshTokens, 1)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newMockStore()
	svc := newTestAuthService(store)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Username: "alice", Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), models.RegisterRequest{Username: "bob", Email: "alice@x.com", Password: "Secret123!"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmailTaken.Code, appErrors.FromError(err).Code)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	store := newMockStore()
	svc := newTestAuthService(store)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Username: "alice", Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), models.RegisterRequest{Username: "alice", Email: "other@x.com", Password: "Secret123!"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUsernameTaken.Code, appErrors.FromError(err).Code)
}

func TestLoginSuccess(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, store.lastLoginUpdated)
}

func TestLoginFailureIsUniform(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	_, unknownErr := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@x.com", Password: "Secret123!"})
	require.Error(t, unknownErr)

	_, wrongErr := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "wrongpassword"})
	require.Error(t, wrongErr)

	unknown := appErrors.FromError(unknownErr)
	wrong := appErrors.FromError(wrongErr)
	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Message, wrong.Message)
	assert.Equal(t, unknown.Status, wrong.Status)
}

func TestLoginInactiveAccount(t *testing.T) {
	store := newMockStore()
	user := seedUser(store, "Secret123!")
	user.Active = false
	svc := newTestAuthService(store)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
	assert.Equal(t, 401, appErr.Status)
}

func TestLoginAllowsConcurrentSessions(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	first, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)
	second, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Len(t, store.activeTokens("u1", time.Now().UTC()), 2)
}

func TestRefreshRotation(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	old := store.refreshTokens[login.RefreshToken]
	require.NotNil(t, old.RevokedAt)
	require.NotNil(t, old.ReplacedByToken)
	assert.Equal(t, refreshed.RefreshToken, *old.ReplacedByToken)
	assert.False(t, old.Active(time.Now().UTC()))

	successor := store.refreshTokens[refreshed.RefreshToken]
	assert.True(t, successor.Active(time.Now().UTC()))
}

func TestRefreshReplayFails(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshUnknownToken(t *testing.T) {
	store := newMockStore()
	svc := newTestAuthService(store)

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "never-issued"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshExpiredToken(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return base })

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	// Move the clock past the 7-day refresh lifetime.
	svc.WithClock(func() time.Time { return base.Add(8 * 24 * time.Hour) })

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesAllAndIsIdempotent(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)
	require.Len(t, store.activeTokens("u1", time.Now().UTC()), 2)

	require.NoError(t, svc.Logout(context.Background(), "u1"))
	assert.Empty(t, store.activeTokens("u1", time.Now().UTC()))

	require.NoError(t, svc.Logout(context.Background(), "u1"))
	assert.Empty(t, store.activeTokens("u1", time.Now().UTC()))
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "u1"))

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestForgotPasswordUnknownEmailReportsSuccess(t *testing.T) {
	store := newMockStore()
	svc := newTestAuthService(store)

	err := svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ghost@x.com"})
	require.NoError(t, err)
	assert.Empty(t, store.resetTokens)
}

func TestForgotPasswordInvalidatesPriorTokens(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "alice@x.com"}))
	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "alice@x.com"}))

	require.Len(t, store.resetTokens, 2)
	now := time.Now().UTC()
	valid := 0
	for _, token := range store.resetTokens {
		if token.Valid(now) {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}

func TestResetPasswordSuccess(t *testing.T) {
	store := newMockStore()
	user := seedUser(store, "Secret123!")
	oldHash := user.PasswordHash
	svc := newTestAuthService(store)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "alice@x.com"}))
	var secret string
	for token := range store.resetTokens {
		secret = token
	}

	require.NoError(t, svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: secret, NewPassword: "NewSecret456!"}))
	assert.NotEqual(t, oldHash, user.PasswordHash)
	assert.True(t, security.VerifyPassword("NewSecret456!", user.PasswordHash))

	// Credential change ends every session.
	assert.Empty(t, store.activeTokens("u1", time.Now().UTC()))
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestResetPasswordReuseFails(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "alice@x.com"}))
	var secret string
	for token := range store.resetTokens {
		secret = token
	}

	require.NoError(t, svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: secret, NewPassword: "NewSecret456!"}))

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: secret, NewPassword: "Another789!"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidResetToken.Code, appErrors.FromError(err).Code)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	store := newMockStore()
	seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return base })
	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "alice@x.com"}))

	var secret string
	for token := range store.resetTokens {
		secret = token
	}

	// The reset window is one hour.
	svc.WithClock(func() time.Time { return base.Add(61 * time.Minute) })
	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: secret, NewPassword: "NewSecret456!"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidResetToken.Code, appErrors.FromError(err).Code)
}

func TestSessionLifecycleScenario(t *testing.T) {
	store := newMockStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, models.RegisterRequest{Username: "alice", Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	login, err := svc.Login(ctx, models.LoginRequest{Email: "alice@x.com", Password: "Secret123!"})
	require.NoError(t, err)
	r1 := login.RefreshToken

	refreshed, err := svc.Refresh(ctx, models.RefreshTokenRequest{RefreshToken: r1})
	require.NoError(t, err)
	r2 := refreshed.RefreshToken

	_, err = svc.Refresh(ctx, models.RefreshTokenRequest{RefreshToken: r1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(ctx, registered.User.ID))

	_, err = svc.Refresh(ctx, models.RefreshTokenRequest{RefreshToken: r2})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateToken(t *testing.T) {
	store := newMockStore()
	user := seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	token, _, err := svc.issuer.Issue(user, time.Now().UTC())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Username, claims.Username)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	store := newMockStore()
	user := seedUser(store, "Secret123!")
	svc := newTestAuthService(store)

	token, _, err := svc.issuer.Issue(user, time.Now().UTC())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token + "x")
	require.Error(t, err)
}
