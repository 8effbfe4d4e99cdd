package models

import "time"

// Favorite marks a recipe saved by a user
type Favorite struct {
	UserID    string    `json:"user_id" db:"user_id"`
	RecipeID  string    `json:"recipe_id" db:"recipe_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LikeResult is the outcome of a like toggle
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

// FavoriteResult is the outcome of a favorite toggle
type FavoriteResult struct {
	Favorited bool `json:"favorited"`
}

// DeletionSummary reports what a user data removal touched
type DeletionSummary struct {
	Likes     int `json:"likes"`
	Comments  int `json:"comments"`
	Favorites int `json:"favorites"`
	Reactions int `json:"reactions"`
}
