package repository

import (
	"context"

	"github.com/recipememo-api/internal/database"
	"github.com/recipememo-api/internal/models"
)

// RecipeRepository defines the interface for recipe data operations
type RecipeRepository interface {
	Create(ctx context.Context, recipe *models.Recipe) error
	Update(ctx context.Context, recipe *models.Recipe) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Recipe, error)
	ListByCategory(ctx context.Context, category models.Category, limit int) ([]*models.Recipe, error)
	SearchByTitle(ctx context.Context, title string, limit int) ([]*models.Recipe, error)
	ListByAuthor(ctx context.Context, authorID string, limit int) ([]*models.Recipe, error)
	ListPopular(ctx context.Context, limit int) ([]*models.Recipe, error)
	GetStats(ctx context.Context, id string) (*models.RecipeStats, error)
	Count(ctx context.Context) (int, error)
}

// CommentRepository defines the interface for comment data operations.
// Create and Delete keep the recipe's comments_count in step.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListByRecipe(ctx context.Context, recipeID string) ([]*models.Comment, error)
	Delete(ctx context.Context, comment *models.Comment) error
	SetReaction(ctx context.Context, id, userID string, liked bool) (*models.Comment, error)
	DeleteByUser(ctx context.Context, userID string) (int, []string, error)
	RemoveUserReactions(ctx context.Context, userID string) (int, []string, error)
	Count(ctx context.Context) (int, error)
}

// LikeRepository defines the interface for recipe like operations
type LikeRepository interface {
	Toggle(ctx context.Context, userID, recipeID string) (*models.LikeResult, error)
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// FavoriteRepository defines the interface for favorite operations
type FavoriteRepository interface {
	Toggle(ctx context.Context, userID, recipeID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Favorite, error)
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Recipe   RecipeRepository
	Comment  CommentRepository
	Like     LikeRepository
	Favorite FavoriteRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Recipe:   NewRecipeRepo(db),
		Comment:  NewCommentRepo(db),
		Like:     NewLikeRepo(db),
		Favorite: NewFavoriteRepo(db),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}
