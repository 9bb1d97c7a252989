package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/recipehub/recipes-api/internal/models"
)

// UserRepository provides database access for the profile surface.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
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

// UpdateProfile persists profile fields for a user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET bio = :bio, profile_image_url = :profile_image_url, banner_image_url = :banner_image_url, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Deactivate performs a soft delete by marking the user inactive.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// CountRecipes returns the number of recipes owned by the user.
func (r *UserRepository) CountRecipes(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM recipes WHERE user_id = $1`, userID)
}

// CountPublicRecipes returns the number of public recipes owned by the user.
func (r *UserRepository) CountPublicRecipes(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM recipes WHERE user_id = $1 AND is_public = TRUE`, userID)
}

// CountPrivateRecipes returns the number of private recipes owned by the user.
func (r *UserRepository) CountPrivateRecipes(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM recipes WHERE user_id = $1 AND is_public = FALSE`, userID)
}

// CountFollowers returns the number of users following the given user.
func (r *UserRepository) CountFollowers(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM follows WHERE followed_id = $1`, userID)
}

// CountFollowing returns the number of users the given user follows.
func (r *UserRepository) CountFollowing(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM follows WHERE follower_id = $1`, userID)
}

// CountFavoritesReceived returns how often the user's recipes were favorited.
func (r *UserRepository) CountFavoritesReceived(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM favorites f JOIN recipes rec ON rec.id = f.recipe_id WHERE rec.user_id = $1`, userID)
}

func (r *UserRepository) count(ctx context.Context, query, userID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, fmt.Errorf("count for user %s: %w", userID, err)
	}
	return total, nil
}
