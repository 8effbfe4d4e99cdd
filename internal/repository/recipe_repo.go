package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/recipememo-api/internal/database"
	"github.com/recipememo-api/internal/models"
)

const recipeColumns = `id, title, category, cooking_time, difficulty, ingredients, content, steps,
	image_url, firebase_uid, author_name, is_public, likes_count, comments_count, created_at, updated_at`

// recipeRepo is the concrete implementation of RecipeRepository
type recipeRepo struct {
	db *database.DB
}

// NewRecipeRepo creates a new recipe repository
func NewRecipeRepo(db *database.DB) RecipeRepository {
	return &recipeRepo{db: db}
}

func scanRecipe(row rowScanner) (*models.Recipe, error) {
	var r models.Recipe
	err := row.Scan(
		&r.ID, &r.Title, &r.Category, &r.CookingTime, &r.Difficulty,
		pq.Array(&r.Ingredients), &r.Content, pq.Array(&r.Steps),
		&r.ImageURL, &r.AuthorID, &r.AuthorName, &r.IsPublic,
		&r.LikesCount, &r.CommentsCount, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a new recipe
func (r *recipeRepo) Create(ctx context.Context, recipe *models.Recipe) error {
	query := `
		INSERT INTO recipes (id, title, category, cooking_time, difficulty, ingredients, content, steps,
			image_url, firebase_uid, author_name, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = time.Now()
	}
	recipe.UpdatedAt = recipe.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		recipe.ID, recipe.Title, recipe.Category, recipe.CookingTime, recipe.Difficulty,
		pq.Array(recipe.Ingredients), recipe.Content, pq.Array(recipe.Steps),
		recipe.ImageURL, recipe.AuthorID, recipe.AuthorName, recipe.IsPublic, recipe.CreatedAt,
	)
	return err
}

// Update overwrites the editable fields of a recipe
func (r *recipeRepo) Update(ctx context.Context, recipe *models.Recipe) error {
	query := `
		UPDATE recipes SET title = $2, category = $3, cooking_time = $4, difficulty = $5,
			ingredients = $6, content = $7, steps = $8, image_url = $9, is_public = $10, updated_at = $11
		WHERE id = $1
	`
	recipe.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, query,
		recipe.ID, recipe.Title, recipe.Category, recipe.CookingTime, recipe.Difficulty,
		pq.Array(recipe.Ingredients), recipe.Content, pq.Array(recipe.Steps),
		recipe.ImageURL, recipe.IsPublic, recipe.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recipe %s: %w", recipe.ID, sql.ErrNoRows)
	}
	return nil
}

// Delete removes a recipe; comments, likes and favorites cascade
func (r *recipeRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = $1", id)
	return err
}

// GetByID retrieves a recipe by ID
func (r *recipeRepo) GetByID(ctx context.Context, id string) (*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE id = $1`

	recipe, err := scanRecipe(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return recipe, err
}

// ListByCategory returns public recipes of a category, newest first
func (r *recipeRepo) ListByCategory(ctx context.Context, category models.Category, limit int) ([]*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes
		WHERE category = $1 AND is_public ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, category, limit)
}

// SearchByTitle does a case-insensitive substring match on public recipes
func (r *recipeRepo) SearchByTitle(ctx context.Context, title string, limit int) ([]*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes
		WHERE title ILIKE $1 ESCAPE '\' AND is_public ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, "%"+escapeLike(title)+"%", limit)
}

// ListByAuthor returns every recipe of an author, newest first
func (r *recipeRepo) ListByAuthor(ctx context.Context, authorID string, limit int) ([]*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes
		WHERE firebase_uid = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, authorID, limit)
}

// ListPopular returns public recipes ordered by likes
func (r *recipeRepo) ListPopular(ctx context.Context, limit int) ([]*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes
		WHERE is_public ORDER BY likes_count DESC, created_at DESC LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *recipeRepo) list(ctx context.Context, query string, args ...any) ([]*models.Recipe, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipes := make([]*models.Recipe, 0)
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, recipe)
	}
	return recipes, rows.Err()
}

// GetStats returns the like and comment counters of a recipe
func (r *recipeRepo) GetStats(ctx context.Context, id string) (*models.RecipeStats, error) {
	var stats models.RecipeStats
	err := r.db.QueryRowContext(ctx,
		"SELECT likes_count, comments_count FROM recipes WHERE id = $1", id,
	).Scan(&stats.LikesCount, &stats.CommentsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Count returns the total number of recipes
func (r *recipeRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recipes").Scan(&count)
	return count, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
