package repository

import (
	"context"

	"github.com/recipememo-api/internal/database"
	"github.com/recipememo-api/internal/models"
)

// favoriteRepo is the concrete implementation of FavoriteRepository
type favoriteRepo struct {
	db *database.DB
}

// NewFavoriteRepo creates a new favorite repository
func NewFavoriteRepo(db *database.DB) FavoriteRepository {
	return &favoriteRepo{db: db}
}

// Toggle adds the favorite if absent and removes it otherwise; it reports
// whether the recipe is a favorite afterwards
func (r *favoriteRepo) Toggle(ctx context.Context, userID, recipeID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM favorites WHERE user_id = $1 AND recipe_id = $2", userID, recipeID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO favorites (user_id, recipe_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", userID, recipeID)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListByUser returns the user's favorites, newest first
func (r *favoriteRepo) ListByUser(ctx context.Context, userID string) ([]*models.Favorite, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, recipe_id, created_at FROM favorites WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	favorites := make([]*models.Favorite, 0)
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.UserID, &f.RecipeID, &f.CreatedAt); err != nil {
			return nil, err
		}
		favorites = append(favorites, &f)
	}
	return favorites, rows.Err()
}

// DeleteByUser removes all favorites of userID
func (r *favoriteRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM favorites WHERE user_id = $1", userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
