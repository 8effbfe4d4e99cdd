package repository

import (
	"context"
	"database/sql"

	"github.com/recipememo-api/internal/database"
	"github.com/recipememo-api/internal/models"
)

// likeRepo is the concrete implementation of LikeRepository
type likeRepo struct {
	db *database.DB
}

// NewLikeRepo creates a new like repository
func NewLikeRepo(db *database.DB) LikeRepository {
	return &likeRepo{db: db}
}

// Toggle flips the user's like on a recipe and keeps likes_count in step.
// It returns nil when the recipe does not exist.
func (r *likeRepo) Toggle(ctx context.Context, userID, recipeID string) (*models.LikeResult, error) {
	var result models.LikeResult
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM recipe_likes WHERE user_id = $1 AND recipe_id = $2", userID, recipeID)
		if err != nil {
			return err
		}

		delta := -1
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO recipe_likes (user_id, recipe_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				userID, recipeID); err != nil {
				return err
			}
			delta = 1
			result.Liked = true
		}

		return tx.QueryRowContext(ctx,
			"UPDATE recipes SET likes_count = GREATEST(likes_count + $2, 0) WHERE id = $1 RETURNING likes_count",
			recipeID, delta,
		).Scan(&result.LikesCount)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteByUser removes all likes by userID and decrements the counters
func (r *likeRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	deleted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE recipes SET likes_count = GREATEST(likes_count - 1, 0)
			WHERE id IN (SELECT recipe_id FROM recipe_likes WHERE user_id = $1)
		`, userID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM recipe_likes WHERE user_id = $1", userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = int(n)
		return err
	})
	return deleted, err
}
