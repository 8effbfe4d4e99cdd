package service

import (
	"context"
	"fmt"

	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/realtime"
	"github.com/recipememo-api/internal/repository"
	"github.com/rs/zerolog"
)

// accountService is the concrete implementation of AccountService
type accountService struct {
	repos  *repository.Repositories
	broker realtime.Broker
	log    zerolog.Logger
}

func newAccountService(repos *repository.Repositories, broker realtime.Broker, log zerolog.Logger) *accountService {
	return &accountService{
		repos:  repos,
		broker: broker,
		log:    log.With().Str("service", "account").Logger(),
	}
}

// DeleteUserData removes the caller's likes, comments, comment reactions and
// favorites. Recipes stay; they are deleted one by one by their author.
func (s *accountService) DeleteUserData(ctx context.Context, user comments.Identity) (*models.DeletionSummary, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}

	var summary models.DeletionSummary
	var err error

	if summary.Likes, err = s.repos.Like.DeleteByUser(ctx, user.UserID); err != nil {
		return nil, fmt.Errorf("failed to delete likes: %w", err)
	}

	var touched []string
	n, recipeIDs, err := s.repos.Comment.DeleteByUser(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete comments: %w", err)
	}
	summary.Comments = n
	touched = append(touched, recipeIDs...)

	n, recipeIDs, err = s.repos.Comment.RemoveUserReactions(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove reactions: %w", err)
	}
	summary.Reactions = n
	touched = append(touched, recipeIDs...)

	if summary.Favorites, err = s.repos.Favorite.DeleteByUser(ctx, user.UserID); err != nil {
		return nil, fmt.Errorf("failed to delete favorites: %w", err)
	}

	published := make(map[string]struct{}, len(touched))
	for _, id := range touched {
		if _, ok := published[id]; ok {
			continue
		}
		published[id] = struct{}{}
		if err := s.broker.Publish(context.WithoutCancel(ctx), id); err != nil {
			s.log.Warn().Err(err).Str("recipe_id", id).Msg("Failed to publish comment change")
		}
	}

	s.log.Info().
		Str("user_id", user.UserID).
		Int("likes", summary.Likes).
		Int("comments", summary.Comments).
		Int("reactions", summary.Reactions).
		Int("favorites", summary.Favorites).
		Msg("User data deleted")

	return &summary, nil
}
