package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/recipehub/recipes-api/internal/models"
	appErrors "github.com/recipehub/recipes-api/pkg/errors"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
	CountRecipes(ctx context.Context, userID string) (int, error)
	CountPublicRecipes(ctx context.Context, userID string) (int, error)
	CountPrivateRecipes(ctx context.Context, userID string) (int, error)
	CountFollowers(ctx context.Context, userID string) (int, error)
	CountFollowing(ctx context.Context, userID string) (int, error)
	CountFavoritesReceived(ctx context.Context, userID string) (int, error)
}

type sessionRevoker interface {
	Logout(ctx context.Context, userID string) error
}

// UserService serves the profile surface around the credential core.
type UserService struct {
	repo      profileRepository
	sessions  sessionRevoker
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo profileRepository, sessions sessionRevoker, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, sessions: sessions, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

func profileCacheKey(userID string) string {
	return fmt.Sprintf("profiles:%s", userID)
}

// GetProfile returns the public profile with follow and recipe counts,
// served from cache when possible.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var cached models.UserProfile
	if hit, _ := s.cache.Get(ctx, profileCacheKey(userID), &cached); hit {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	profile := &models.UserProfile{
		PublicUser:     user.Public(),
		BannerImageURL: user.BannerImageURL,
	}

	if profile.RecipesCount, err = s.repo.CountRecipes(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count recipes")
	}
	if profile.FollowersCount, err = s.repo.CountFollowers(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count followers")
	}
	if profile.FollowingCount, err = s.repo.CountFollowing(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count following")
	}

	if err := s.cache.Set(ctx, profileCacheKey(userID), profile, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache profile", zap.String("user_id", userID), zap.Error(err))
	}

	return profile, nil
}

// UpdateProfile applies the provided partial updates and returns the fresh
// profile. Nil fields are left untouched.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.UserProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.Bio != nil {
		user.Bio = req.Bio
	}
	if req.ProfileImageURL != nil {
		user.ProfileImageURL = req.ProfileImageURL
	}
	if req.BannerImageURL != nil {
		user.BannerImageURL = req.BannerImageURL
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	if err := s.cache.Invalidate(ctx, profileCacheKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate profile cache", zap.String("user_id", userID), zap.Error(err))
	}

	return s.GetProfile(ctx, userID)
}

// GetStats aggregates ownership counters for the user.
func (s *UserService) GetStats(ctx context.Context, userID string) (*models.UserStats, error) {
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	stats := &models.UserStats{UserID: userID}
	var err error
	if stats.RecipesCount, err = s.repo.CountRecipes(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count recipes")
	}
	if stats.PublicRecipesCount, err = s.repo.CountPublicRecipes(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count public recipes")
	}
	if stats.PrivateRecipesCount, err = s.repo.CountPrivateRecipes(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count private recipes")
	}
	if stats.FollowersCount, err = s.repo.CountFollowers(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count followers")
	}
	if stats.FollowingCount, err = s.repo.CountFollowing(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count following")
	}
	if stats.TotalFavoritesReceived, err = s.repo.CountFavoritesReceived(ctx, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count favorites")
	}

	return stats, nil
}

// DeactivateAccount soft-deletes the account and ends all of its sessions.
func (s *UserService) DeactivateAccount(ctx context.Context, userID string) error {
	if err := s.repo.Deactivate(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate account")
	}

	if s.sessions != nil {
		if err := s.sessions.Logout(ctx, userID); err != nil {
			s.logger.Warn("failed to revoke sessions on deactivation", zap.String("user_id", userID), zap.Error(err))
		}
	}

	if err := s.cache.Invalidate(ctx, profileCacheKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate profile cache", zap.String("user_id", userID), zap.Error(err))
	}

	return nil
}
