package service

import (
	"context"
	"io"

	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/config"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/realtime"
	"github.com/recipememo-api/internal/repository"
	"github.com/recipememo-api/internal/validation"
	"github.com/rs/zerolog"
)

// Image is an uploaded file already checked by the handler
type Image struct {
	Ext    string
	Reader io.Reader
}

// ImageStore persists recipe images and returns their public URL
type ImageStore interface {
	Save(ctx context.Context, ext string, r io.Reader) (string, error)
	Delete(url string) error
}

// RecipeService defines recipe operations
type RecipeService interface {
	Create(ctx context.Context, author comments.Identity, in *models.RecipeInput, image *Image) (*models.Recipe, error)
	Update(ctx context.Context, author comments.Identity, id string, in *models.RecipeInput, image *Image) (*models.Recipe, error)
	Delete(ctx context.Context, author comments.Identity, id string) error
	Get(ctx context.Context, viewerID, id string) (*models.Recipe, error)
	GetInCategory(ctx context.Context, viewerID, category, id string) (*models.Recipe, error)
	ListByCategory(ctx context.Context, category string, limit int) ([]*models.Recipe, error)
	Search(ctx context.Context, title string, limit int) ([]*models.Recipe, error)
	ListByAuthor(ctx context.Context, viewerID, authorID string, limit int) ([]*models.Recipe, error)
	ListPopular(ctx context.Context, limit int) ([]*models.Recipe, error)
	Stats(ctx context.Context, id string) (*models.RecipeStats, error)
	ToggleLike(ctx context.Context, user comments.Identity, id string) (*models.LikeResult, error)
	Count(ctx context.Context) (int, error)
}

// CommentService defines the comment backend used by the realtime clients
type CommentService interface {
	List(ctx context.Context, recipeID string) ([]*models.Comment, error)
	Create(ctx context.Context, author comments.Identity, recipeID, text, idempotencyKey string) (*models.Comment, bool, error)
	Delete(ctx context.Context, requester comments.Identity, commentID string) error
	SetReaction(ctx context.Context, user comments.Identity, commentID string, liked bool) (*models.Comment, error)
	Subscribe(ctx context.Context, recipeID string) (*realtime.Subscription, error)
	Count(ctx context.Context) (int, error)
}

// FavoriteService defines favorite operations
type FavoriteService interface {
	Toggle(ctx context.Context, user comments.Identity, recipeID string) (*models.FavoriteResult, error)
	List(ctx context.Context, user comments.Identity) ([]*models.Favorite, error)
}

// AccountService defines account-level operations
type AccountService interface {
	DeleteUserData(ctx context.Context, user comments.Identity) (*models.DeletionSummary, error)
}

// Services holds all service interfaces
type Services struct {
	Recipe   RecipeService
	Comment  CommentService
	Favorite FavoriteService
	Account  AccountService
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, broker realtime.Broker, images ImageStore, cfg *config.Config, log zerolog.Logger) *Services {
	v := validation.NewValidator(cfg.Comments.MaxLength)

	return &Services{
		Recipe:   newRecipeService(repos, images, v, log),
		Comment:  newCommentService(repos, broker, v, cfg.Comments.IdempotencyTTL, log),
		Favorite: newFavoriteService(repos, log),
		Account:  newAccountService(repos, broker, log),
	}
}

func requireUser(user comments.Identity) error {
	if user.UserID == "" {
		return ErrForbidden
	}
	return nil
}
