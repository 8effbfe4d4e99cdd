package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/realtime"
	"github.com/recipememo-api/internal/repository"
	"github.com/recipememo-api/internal/validation"
	"github.com/rs/zerolog"
)

// AnonymousName is shown for commenters without a display name
const AnonymousName = "익명"

// commentService is the concrete implementation of CommentService
type commentService struct {
	recipes   repository.RecipeRepository
	comments  repository.CommentRepository
	broker    realtime.Broker
	validator *validation.Validator
	log       zerolog.Logger

	// replays holds comments created with an Idempotency-Key
	replays     *cache.Cache
	replayLocks keyedMutex
}

// keyedMutex serializes callers sharing a key and lets other keys through
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func newCommentService(repos *repository.Repositories, broker realtime.Broker, v *validation.Validator, replayTTL time.Duration, log zerolog.Logger) *commentService {
	if replayTTL <= 0 {
		replayTTL = 10 * time.Minute
	}
	return &commentService{
		recipes:   repos.Recipe,
		comments:  repos.Comment,
		broker:    broker,
		validator: v,
		log:       log.With().Str("service", "comment").Logger(),
		replays:   cache.New(replayTTL, replayTTL*2),
	}
}

func (s *commentService) recipeExists(ctx context.Context, recipeID string) error {
	if !validation.IsValidUUID(recipeID) {
		return ErrNotFound
	}
	recipe, err := s.recipes.GetByID(ctx, recipeID)
	if err != nil {
		return fmt.Errorf("failed to get recipe: %w", err)
	}
	if recipe == nil {
		return ErrNotFound
	}
	return nil
}

// List returns a recipe's comments newest first
func (s *commentService) List(ctx context.Context, recipeID string) ([]*models.Comment, error) {
	if err := s.recipeExists(ctx, recipeID); err != nil {
		return nil, err
	}
	return s.comments.ListByRecipe(ctx, recipeID)
}

// Create stores a comment. Repeating a request with the same idempotency key
// returns the first comment and reports replayed=true.
func (s *commentService) Create(ctx context.Context, author comments.Identity, recipeID, text, idempotencyKey string) (*models.Comment, bool, error) {
	if err := requireUser(author); err != nil {
		return nil, false, err
	}
	if errs := s.validator.ValidateComment(&models.CommentInput{Text: text}); len(errs) > 0 {
		return nil, false, &InputError{Errors: errs}
	}

	if idempotencyKey != "" {
		cacheKey := author.UserID + ":" + recipeID + ":" + idempotencyKey
		unlock := s.replayLocks.Lock(cacheKey)
		defer unlock()

		if cached, ok := s.replays.Get(cacheKey); ok {
			s.log.Debug().Str("idempotency_key", idempotencyKey).Msg("Replaying comment create")
			return cached.(*models.Comment), true, nil
		}

		comment, err := s.create(ctx, author, recipeID, text)
		if err != nil {
			return nil, false, err
		}
		s.replays.Set(cacheKey, comment, cache.DefaultExpiration)
		return comment, false, nil
	}

	comment, err := s.create(ctx, author, recipeID, text)
	return comment, false, err
}

func (s *commentService) create(ctx context.Context, author comments.Identity, recipeID, text string) (*models.Comment, error) {
	if err := s.recipeExists(ctx, recipeID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(author.DisplayName)
	if name == "" {
		name = AnonymousName
	}

	comment := &models.Comment{
		ID:        uuid.New().String(),
		RecipeID:  recipeID,
		UserID:    author.UserID,
		UserName:  name,
		Text:      strings.TrimSpace(text),
		LikedBy:   []string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	s.log.Info().Str("comment_id", comment.ID).Str("recipe_id", recipeID).Str("user_id", author.UserID).Msg("Comment created")
	s.publish(ctx, recipeID)
	return comment, nil
}

// Delete removes a comment written by requester
func (s *commentService) Delete(ctx context.Context, requester comments.Identity, commentID string) error {
	if err := requireUser(requester); err != nil {
		return err
	}
	comment, err := s.find(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != requester.UserID {
		return ErrForbidden
	}

	if err := s.comments.Delete(ctx, comment); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	s.log.Info().Str("comment_id", commentID).Str("recipe_id", comment.RecipeID).Msg("Comment deleted")
	s.publish(ctx, comment.RecipeID)
	return nil
}

// SetReaction sets whether user likes a comment. Setting the current state again is a no-op.
func (s *commentService) SetReaction(ctx context.Context, user comments.Identity, commentID string, liked bool) (*models.Comment, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	if !validation.IsValidUUID(commentID) {
		return nil, ErrNotFound
	}

	comment, err := s.comments.SetReaction(ctx, commentID, user.UserID, liked)
	if err != nil {
		return nil, fmt.Errorf("failed to set reaction: %w", err)
	}
	if comment == nil {
		return nil, ErrNotFound
	}

	s.publish(ctx, comment.RecipeID)
	return comment, nil
}

// Subscribe returns change signals for a recipe's comments
func (s *commentService) Subscribe(ctx context.Context, recipeID string) (*realtime.Subscription, error) {
	if err := s.recipeExists(ctx, recipeID); err != nil {
		return nil, err
	}
	return s.broker.Subscribe(ctx, recipeID)
}

// Count returns the number of comments
func (s *commentService) Count(ctx context.Context) (int, error) {
	return s.comments.Count(ctx)
}

func (s *commentService) find(ctx context.Context, commentID string) (*models.Comment, error) {
	if !validation.IsValidUUID(commentID) {
		return nil, ErrNotFound
	}
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	if comment == nil {
		return nil, ErrNotFound
	}
	return comment, nil
}

// publish failures never fail the write; stream clients also poll on ping
func (s *commentService) publish(ctx context.Context, recipeID string) {
	if err := s.broker.Publish(context.WithoutCancel(ctx), recipeID); err != nil {
		s.log.Warn().Err(err).Str("recipe_id", recipeID).Msg("Failed to publish comment change")
	}
}
