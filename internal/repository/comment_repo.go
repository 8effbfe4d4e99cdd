package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/recipememo-api/internal/database"
	"github.com/recipememo-api/internal/models"
)

const commentColumns = `id, recipe_id, user_id, user_name, text, likes, liked_by, created_at, updated_at`

// commentRepo is the concrete implementation of CommentRepository
type commentRepo struct {
	db *database.DB
}

// NewCommentRepo creates a new comment repository
func NewCommentRepo(db *database.DB) CommentRepository {
	return &commentRepo{db: db}
}

func scanComment(row rowScanner) (*models.Comment, error) {
	var c models.Comment
	err := row.Scan(
		&c.ID, &c.RecipeID, &c.UserID, &c.UserName, &c.Text,
		&c.Likes, pq.Array(&c.LikedBy), &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.LikedBy == nil {
		c.LikedBy = []string{}
	}
	return &c, nil
}

// Create inserts a comment and bumps the recipe's comment counter
func (r *commentRepo) Create(ctx context.Context, comment *models.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	comment.UpdatedAt = comment.CreatedAt
	if comment.LikedBy == nil {
		comment.LikedBy = []string{}
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, recipe_id, user_id, user_name, text, likes, liked_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 0, '{}', $6, $6)
		`, comment.ID, comment.RecipeID, comment.UserID, comment.UserName, comment.Text, comment.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE recipes SET comments_count = comments_count + 1 WHERE id = $1", comment.RecipeID)
		return err
	})
}

// GetByID retrieves a comment by ID
func (r *commentRepo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`

	comment, err := scanComment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return comment, err
}

// ListByRecipe returns the comments of a recipe, newest first
func (r *commentRepo) ListByRecipe(ctx context.Context, recipeID string) ([]*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE recipe_id = $1 ORDER BY created_at DESC, id`
	rows, err := r.db.QueryContext(ctx, query, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]*models.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

// Delete removes a comment and decrements the recipe's comment counter
func (r *commentRepo) Delete(ctx context.Context, comment *models.Comment) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE id = $1", comment.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE recipes SET comments_count = GREATEST(comments_count - 1, 0) WHERE id = $1", comment.RecipeID)
		return err
	})
}

// SetReaction puts userID in or out of the liker set and returns the updated
// comment, or nil when it does not exist. Repeating a call changes nothing.
func (r *commentRepo) SetReaction(ctx context.Context, id, userID string, liked bool) (*models.Comment, error) {
	var comment *models.Comment
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE comments SET liked_by = CASE
				WHEN $3 AND NOT ($2::text = ANY(liked_by)) THEN array_append(liked_by, $2::text)
				WHEN NOT $3 THEN array_remove(liked_by, $2::text)
				ELSE liked_by
			END
			WHERE id = $1
		`, id, userID, liked)
		if err != nil {
			return err
		}

		query := `UPDATE comments SET likes = cardinality(liked_by), updated_at = NOW()
			WHERE id = $1 RETURNING ` + commentColumns
		comment, err = scanComment(tx.QueryRowContext(ctx, query, id))
		return err
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return comment, err
}

// DeleteByUser removes every comment by userID and returns how many went and
// which recipes they belonged to
func (r *commentRepo) DeleteByUser(ctx context.Context, userID string) (int, []string, error) {
	var recipeIDs []string
	deleted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE recipes r SET comments_count = GREATEST(r.comments_count - c.n, 0)
			FROM (SELECT recipe_id, COUNT(*) AS n FROM comments WHERE user_id = $1 GROUP BY recipe_id) c
			WHERE r.id = c.recipe_id
		`, userID)
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, "DELETE FROM comments WHERE user_id = $1 RETURNING recipe_id", userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		recipeIDs, deleted, err = collectRecipeIDs(rows)
		return err
	})
	return deleted, recipeIDs, err
}

// RemoveUserReactions takes userID out of every liker set
func (r *commentRepo) RemoveUserReactions(ctx context.Context, userID string) (int, []string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE comments SET liked_by = array_remove(liked_by, $1::text),
			likes = GREATEST(likes - 1, 0), updated_at = NOW()
		WHERE $1::text = ANY(liked_by)
		RETURNING recipe_id
	`, userID)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	recipeIDs, n, err := collectRecipeIDs(rows)
	return n, recipeIDs, err
}

// Count returns the total number of comments
func (r *commentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments").Scan(&count)
	return count, err
}

// collectRecipeIDs reads a single recipe_id column and returns the distinct
// ids along with the row count
func collectRecipeIDs(rows *sql.Rows) ([]string, int, error) {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	n := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		n++
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, n, rows.Err()
}
