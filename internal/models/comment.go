package models

import (
	"time"
)

// Comment represents a comment on a recipe
type Comment struct {
	ID        string    `json:"id" db:"id"`
	RecipeID  string    `json:"recipe_id" db:"recipe_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	UserName  string    `json:"user_name" db:"user_name"`
	Text      string    `json:"text" db:"text"`
	Likes     int       `json:"likes" db:"likes"`
	LikedBy   []string  `json:"liked_by" db:"liked_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CommentInput is the body of a create request
type CommentInput struct {
	Text string `json:"text" validate:"required,notblank"`
}

// ReactionInput is the body of a reaction request
type ReactionInput struct {
	Liked *bool `json:"liked" validate:"required"`
}

// DefaultMaxCommentLength is the default limit on comment text, in runes
const DefaultMaxCommentLength = 1000
