package service

import (
	"context"
	"fmt"

	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/repository"
	"github.com/recipememo-api/internal/validation"
	"github.com/rs/zerolog"
)

// favoriteService is the concrete implementation of FavoriteService
type favoriteService struct {
	recipes   repository.RecipeRepository
	favorites repository.FavoriteRepository
	log       zerolog.Logger
}

func newFavoriteService(repos *repository.Repositories, log zerolog.Logger) *favoriteService {
	return &favoriteService{
		recipes:   repos.Recipe,
		favorites: repos.Favorite,
		log:       log.With().Str("service", "favorite").Logger(),
	}
}

// Toggle saves or unsaves a recipe for user
func (s *favoriteService) Toggle(ctx context.Context, user comments.Identity, recipeID string) (*models.FavoriteResult, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	if !validation.IsValidUUID(recipeID) {
		return nil, ErrNotFound
	}
	recipe, err := s.recipes.GetByID(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	if recipe == nil || (!recipe.IsPublic && recipe.AuthorID != user.UserID) {
		return nil, ErrNotFound
	}

	favorited, err := s.favorites.Toggle(ctx, user.UserID, recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return &models.FavoriteResult{Favorited: favorited}, nil
}

// List returns user's favorites, newest first
func (s *favoriteService) List(ctx context.Context, user comments.Identity) ([]*models.Favorite, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	return s.favorites.ListByUser(ctx, user.UserID)
}
