package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/repository"
	"github.com/recipememo-api/internal/validation"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// recipeService is the concrete implementation of RecipeService
type recipeService struct {
	recipes   repository.RecipeRepository
	likes     repository.LikeRepository
	images    ImageStore
	validator *validation.Validator
	log       zerolog.Logger
}

func newRecipeService(repos *repository.Repositories, images ImageStore, v *validation.Validator, log zerolog.Logger) *recipeService {
	return &recipeService{
		recipes:   repos.Recipe,
		likes:     repos.Like,
		images:    images,
		validator: v,
		log:       log.With().Str("service", "recipe").Logger(),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

func (s *recipeService) apply(r *models.Recipe, in *models.RecipeInput) {
	category, _ := models.ParseCategory(in.Category)
	r.Title = strings.TrimSpace(in.Title)
	r.Category = category
	r.CookingTime = strings.TrimSpace(in.CookingTime)
	r.Difficulty = in.Difficulty
	r.Ingredients = trimAll(in.Ingredients)
	r.Content = in.Content
	r.Steps = trimAll(in.Steps)
	if in.IsPublic != nil {
		r.IsPublic = *in.IsPublic
	}
}

// Create validates the input, stores the optional image and inserts the recipe
func (s *recipeService) Create(ctx context.Context, author comments.Identity, in *models.RecipeInput, image *Image) (*models.Recipe, error) {
	if err := requireUser(author); err != nil {
		return nil, err
	}
	if errs := s.validator.ValidateRecipe(in); len(errs) > 0 {
		return nil, &InputError{Errors: errs}
	}

	recipe := &models.Recipe{
		ID:         uuid.New().String(),
		AuthorID:   author.UserID,
		AuthorName: author.DisplayName,
		IsPublic:   true,
	}
	s.apply(recipe, in)

	if image != nil {
		url, err := s.images.Save(ctx, image.Ext, image.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
		recipe.ImageURL = url
	}

	if err := s.recipes.Create(ctx, recipe); err != nil {
		if recipe.ImageURL != "" {
			s.removeImage(recipe.ImageURL)
		}
		return nil, fmt.Errorf("failed to create recipe: %w", err)
	}

	s.log.Info().
		Str("recipe_id", recipe.ID).
		Str("author_id", recipe.AuthorID).
		Str("category", string(recipe.Category)).
		Msg("Recipe created")

	return recipe, nil
}

// Update replaces the editable fields; a new image replaces the old one
func (s *recipeService) Update(ctx context.Context, author comments.Identity, id string, in *models.RecipeInput, image *Image) (*models.Recipe, error) {
	recipe, err := s.owned(ctx, author, id)
	if err != nil {
		return nil, err
	}
	if errs := s.validator.ValidateRecipe(in); len(errs) > 0 {
		return nil, &InputError{Errors: errs}
	}

	s.apply(recipe, in)

	oldImage := ""
	if image != nil {
		url, err := s.images.Save(ctx, image.Ext, image.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
		oldImage, recipe.ImageURL = recipe.ImageURL, url
	}

	if err := s.recipes.Update(ctx, recipe); err != nil {
		return nil, fmt.Errorf("failed to update recipe: %w", err)
	}
	if oldImage != "" {
		s.removeImage(oldImage)
	}

	s.log.Info().Str("recipe_id", id).Msg("Recipe updated")
	return recipe, nil
}

// Delete removes a recipe owned by author along with its image
func (s *recipeService) Delete(ctx context.Context, author comments.Identity, id string) error {
	recipe, err := s.owned(ctx, author, id)
	if err != nil {
		return err
	}

	if err := s.recipes.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if recipe.ImageURL != "" {
		s.removeImage(recipe.ImageURL)
	}

	s.log.Info().Str("recipe_id", id).Msg("Recipe deleted")
	return nil
}

func (s *recipeService) owned(ctx context.Context, author comments.Identity, id string) (*models.Recipe, error) {
	if err := requireUser(author); err != nil {
		return nil, err
	}
	recipe, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe.AuthorID != author.UserID {
		return nil, ErrForbidden
	}
	return recipe, nil
}

func (s *recipeService) find(ctx context.Context, id string) (*models.Recipe, error) {
	if !validation.IsValidUUID(id) {
		return nil, ErrNotFound
	}
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	if recipe == nil {
		return nil, ErrNotFound
	}
	return recipe, nil
}

func (s *recipeService) removeImage(url string) {
	if err := s.images.Delete(url); err != nil {
		s.log.Warn().Err(err).Str("image_url", url).Msg("Failed to remove image")
	}
}

// Get returns a recipe; private recipes are visible to their author only
func (s *recipeService) Get(ctx context.Context, viewerID, id string) (*models.Recipe, error) {
	recipe, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !recipe.IsPublic && recipe.AuthorID != viewerID {
		return nil, ErrNotFound
	}
	return recipe, nil
}

// GetInCategory is Get restricted to one category
func (s *recipeService) GetInCategory(ctx context.Context, viewerID, category, id string) (*models.Recipe, error) {
	c, ok := models.ParseCategory(category)
	if !ok {
		return nil, invalid("category", "unknown category", category)
	}
	recipe, err := s.Get(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	if recipe.Category != c {
		return nil, ErrNotFound
	}
	return recipe, nil
}

// ListByCategory lists public recipes of one category
func (s *recipeService) ListByCategory(ctx context.Context, category string, limit int) ([]*models.Recipe, error) {
	c, ok := models.ParseCategory(category)
	if !ok {
		return nil, invalid("category", "unknown category", category)
	}
	return s.recipes.ListByCategory(ctx, c, clampLimit(limit))
}

// Search matches public recipe titles
func (s *recipeService) Search(ctx context.Context, title string, limit int) ([]*models.Recipe, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid("title", "title is required", nil)
	}
	return s.recipes.SearchByTitle(ctx, title, clampLimit(limit))
}

// ListByAuthor lists an author's recipes; others see only the public ones
func (s *recipeService) ListByAuthor(ctx context.Context, viewerID, authorID string, limit int) ([]*models.Recipe, error) {
	recipes, err := s.recipes.ListByAuthor(ctx, authorID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if viewerID == authorID {
		return recipes, nil
	}
	public := make([]*models.Recipe, 0, len(recipes))
	for _, r := range recipes {
		if r.IsPublic {
			public = append(public, r)
		}
	}
	return public, nil
}

// ListPopular lists public recipes by likes
func (s *recipeService) ListPopular(ctx context.Context, limit int) ([]*models.Recipe, error) {
	return s.recipes.ListPopular(ctx, clampLimit(limit))
}

// Stats returns like and comment counters
func (s *recipeService) Stats(ctx context.Context, id string) (*models.RecipeStats, error) {
	if !validation.IsValidUUID(id) {
		return nil, ErrNotFound
	}
	stats, err := s.recipes.GetStats(ctx, id)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, ErrNotFound
	}
	return stats, nil
}

// ToggleLike flips the user's like on a recipe
func (s *recipeService) ToggleLike(ctx context.Context, user comments.Identity, id string) (*models.LikeResult, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	recipe, err := s.Get(ctx, user.UserID, id)
	if err != nil {
		return nil, err
	}

	result, err := s.likes.Toggle(ctx, user.UserID, recipe.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle like: %w", err)
	}
	if result == nil {
		return nil, ErrNotFound
	}

	s.log.Debug().Str("recipe_id", id).Str("user_id", user.UserID).Bool("liked", result.Liked).Msg("Like toggled")
	return result, nil
}

// Count returns the number of recipes
func (s *recipeService) Count(ctx context.Context) (int, error) {
	return s.recipes.Count(ctx)
}
