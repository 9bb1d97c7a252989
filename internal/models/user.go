package models

import "time"

// User represents an account stored in the users table. The password hash is
// opaque to everything outside the auth service and never serialised.
type User struct {
	ID              string     `db:"id" json:"id"`
	Username        string     `db:"username" json:"username"`
	Email           string     `db:"email" json:"email"`
	PasswordHash    string     `db:"password_hash" json:"-"`
	Bio             *string    `db:"bio" json:"bio,omitempty"`
	ProfileImageURL *string    `db:"profile_image_url" json:"profile_image_url,omitempty"`
	BannerImageURL  *string    `db:"banner_image_url" json:"banner_image_url,omitempty"`
	Active          bool       `db:"active" json:"active"`
	EmailVerified   bool       `db:"email_verified" json:"email_verified"`
	LastLoginAt     *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// PublicUser is the externally visible view of a user.
type PublicUser struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Bio             *string   `json:"bio,omitempty"`
	ProfileImageURL *string   `json:"profile_image_url,omitempty"`
	EmailVerified   bool      `json:"email_verified"`
	CreatedAt       time.Time `json:"created_at"`
}

// Public returns the exposable view of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Bio:             u.Bio,
		ProfileImageURL: u.ProfileImageURL,
		EmailVerified:   u.EmailVerified,
		CreatedAt:       u.CreatedAt,
	}
}

// UserProfile extends the public view with follow-graph and recipe counts.
type UserProfile struct {
	PublicUser
	BannerImageURL *string `json:"banner_image_url,omitempty"`
	RecipesCount   int     `json:"recipes_count"`
	FollowersCount int     `json:"followers_count"`
	FollowingCount int     `json:"following_count"`
}

// UserStats aggregates ownership counters for a user.
type UserStats struct {
	UserID                 string `json:"user_id"`
	RecipesCount           int    `json:"recipes_count"`
	PublicRecipesCount     int    `json:"public_recipes_count"`
	PrivateRecipesCount    int    `json:"private_recipes_count"`
	FollowersCount         int    `json:"followers_count"`
	FollowingCount         int    `json:"following_count"`
	TotalFavoritesReceived int    `json:"total_favorites_received"`
}

// UpdateProfileRequest carries partial profile updates; nil fields are left
// untouched.
type UpdateProfileRequest struct {
	Bio             *string `json:"bio"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,url"`
	BannerImageURL  *string `json:"banner_image_url" validate:"omitempty,url"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
