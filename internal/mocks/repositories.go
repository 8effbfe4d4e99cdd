package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/repository"
)

// MockStore is an in-memory backing store shared by the mock repositories,
// so that counters stay consistent across them as they do in Postgres
type MockStore struct {
	mu        sync.Mutex
	Recipes   map[string]*models.Recipe
	Comments  map[string]*models.Comment
	Likes     map[string]bool
	Favorites map[string]*models.Favorite
	favSeq    map[string]int
	seq       int

	// Err, when set, is returned by every operation
	Err error
}

// NewMockStore creates an empty store
func NewMockStore() *MockStore {
	return &MockStore{
		Recipes:   make(map[string]*models.Recipe),
		Comments:  make(map[string]*models.Comment),
		Likes:     make(map[string]bool),
		Favorites: make(map[string]*models.Favorite),
		favSeq:    make(map[string]int),
	}
}

// Repositories returns repositories backed by the store
func (s *MockStore) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Recipe:   &MockRecipeRepository{store: s},
		Comment:  &MockCommentRepository{store: s},
		Like:     &MockLikeRepository{store: s},
		Favorite: &MockFavoriteRepository{store: s},
	}
}

// AddRecipe inserts a recipe directly, for test setup
func (s *MockStore) AddRecipe(r *models.Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.Recipes[r.ID] = copyRecipe(r)
}

// AddComment inserts a comment directly, for test setup
func (s *MockStore) AddComment(c *models.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.LikedBy == nil {
		c.LikedBy = []string{}
	}
	s.Comments[c.ID] = copyComment(c)
	if r, ok := s.Recipes[c.RecipeID]; ok {
		r.CommentsCount++
	}
}

// Recipe returns a copy of a stored recipe
func (s *MockStore) Recipe(id string) *models.Recipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.Recipes[id]; ok {
		return copyRecipe(r)
	}
	return nil
}

func copyRecipe(r *models.Recipe) *models.Recipe {
	out := *r
	out.Ingredients = slices.Clone(r.Ingredients)
	out.Steps = slices.Clone(r.Steps)
	return &out
}

func copyComment(c *models.Comment) *models.Comment {
	out := *c
	out.LikedBy = slices.Clone(c.LikedBy)
	if out.LikedBy == nil {
		out.LikedBy = []string{}
	}
	return &out
}

func pairKey(userID, recipeID string) string {
	return userID + "|" + recipeID
}

// MockRecipeRepository is a mock implementation of RecipeRepository
type MockRecipeRepository struct {
	store *MockStore
}

// Verify interface compliance
var _ repository.RecipeRepository = (*MockRecipeRepository)(nil)

func (m *MockRecipeRepository) Create(ctx context.Context, recipe *models.Recipe) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, exists := s.Recipes[recipe.ID]; exists {
		return fmt.Errorf("duplicate recipe id %s", recipe.ID)
	}
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = time.Now()
	}
	recipe.UpdatedAt = recipe.CreatedAt
	s.Recipes[recipe.ID] = copyRecipe(recipe)
	return nil
}

func (m *MockRecipeRepository) Update(ctx context.Context, recipe *models.Recipe) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	existing, ok := s.Recipes[recipe.ID]
	if !ok {
		return sql.ErrNoRows
	}
	recipe.UpdatedAt = time.Now()
	updated := copyRecipe(recipe)
	updated.LikesCount = existing.LikesCount
	updated.CommentsCount = existing.CommentsCount
	s.Recipes[recipe.ID] = updated
	return nil
}

func (m *MockRecipeRepository) Delete(ctx context.Context, id string) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.Recipes, id)
	for cid, c := range s.Comments {
		if c.RecipeID == id {
			delete(s.Comments, cid)
		}
	}
	for key := range s.Likes {
		if strings.HasSuffix(key, "|"+id) {
			delete(s.Likes, key)
		}
	}
	for key := range s.Favorites {
		if strings.HasSuffix(key, "|"+id) {
			delete(s.Favorites, key)
		}
	}
	return nil
}

func (m *MockRecipeRepository) GetByID(ctx context.Context, id string) (*models.Recipe, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if r, ok := s.Recipes[id]; ok {
		return copyRecipe(r), nil
	}
	return nil, nil
}

func (m *MockRecipeRepository) filter(limit int, keep func(*models.Recipe) bool, less func(a, b *models.Recipe) bool) ([]*models.Recipe, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]*models.Recipe, 0)
	for _, r := range s.Recipes {
		if keep(r) {
			out = append(out, copyRecipe(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newestFirst(a, b *models.Recipe) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (m *MockRecipeRepository) ListByCategory(ctx context.Context, category models.Category, limit int) ([]*models.Recipe, error) {
	return m.filter(limit, func(r *models.Recipe) bool { return r.IsPublic && r.Category == category }, newestFirst)
}

func (m *MockRecipeRepository) SearchByTitle(ctx context.Context, title string, limit int) ([]*models.Recipe, error) {
	needle := strings.ToLower(title)
	return m.filter(limit, func(r *models.Recipe) bool {
		return r.IsPublic && strings.Contains(strings.ToLower(r.Title), needle)
	}, newestFirst)
}

func (m *MockRecipeRepository) ListByAuthor(ctx context.Context, authorID string, limit int) ([]*models.Recipe, error) {
	return m.filter(limit, func(r *models.Recipe) bool { return r.AuthorID == authorID }, newestFirst)
}

func (m *MockRecipeRepository) ListPopular(ctx context.Context, limit int) ([]*models.Recipe, error) {
	return m.filter(limit, func(r *models.Recipe) bool { return r.IsPublic }, func(a, b *models.Recipe) bool {
		if a.LikesCount != b.LikesCount {
			return a.LikesCount > b.LikesCount
		}
		return newestFirst(a, b)
	})
}

func (m *MockRecipeRepository) GetStats(ctx context.Context, id string) (*models.RecipeStats, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r, ok := s.Recipes[id]
	if !ok {
		return nil, nil
	}
	return &models.RecipeStats{LikesCount: r.LikesCount, CommentsCount: r.CommentsCount}, nil
}

func (m *MockRecipeRepository) Count(ctx context.Context) (int, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Recipes), s.Err
}

// MockCommentRepository is a mock implementation of CommentRepository
type MockCommentRepository struct {
	store *MockStore
}

// Verify interface compliance
var _ repository.CommentRepository = (*MockCommentRepository)(nil)

func (m *MockCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	r, ok := s.Recipes[comment.RecipeID]
	if !ok {
		return fmt.Errorf("recipe %s does not exist", comment.RecipeID)
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	comment.UpdatedAt = comment.CreatedAt
	s.Comments[comment.ID] = copyComment(comment)
	r.CommentsCount++
	return nil
}

func (m *MockCommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if c, ok := s.Comments[id]; ok {
		return copyComment(c), nil
	}
	return nil, nil
}

func (m *MockCommentRepository) ListByRecipe(ctx context.Context, recipeID string) ([]*models.Comment, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]*models.Comment, 0)
	for _, c := range s.Comments {
		if c.RecipeID == recipeID {
			out = append(out, copyComment(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockCommentRepository) Delete(ctx context.Context, comment *models.Comment) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.Comments[comment.ID]; !ok {
		return nil
	}
	delete(s.Comments, comment.ID)
	if r, ok := s.Recipes[comment.RecipeID]; ok && r.CommentsCount > 0 {
		r.CommentsCount--
	}
	return nil
}

func (m *MockCommentRepository) SetReaction(ctx context.Context, id, userID string, liked bool) (*models.Comment, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	c, ok := s.Comments[id]
	if !ok {
		return nil, nil
	}
	has := slices.Contains(c.LikedBy, userID)
	switch {
	case liked && !has:
		c.LikedBy = append(c.LikedBy, userID)
	case !liked && has:
		c.LikedBy = slices.DeleteFunc(c.LikedBy, func(u string) bool { return u == userID })
	}
	c.Likes = len(c.LikedBy)
	c.UpdatedAt = time.Now()
	return copyComment(c), nil
}

func (m *MockCommentRepository) DeleteByUser(ctx context.Context, userID string) (int, []string, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, nil, s.Err
	}
	var recipeIDs []string
	n := 0
	for id, c := range s.Comments {
		if c.UserID != userID {
			continue
		}
		delete(s.Comments, id)
		n++
		if r, ok := s.Recipes[c.RecipeID]; ok && r.CommentsCount > 0 {
			r.CommentsCount--
		}
		if !slices.Contains(recipeIDs, c.RecipeID) {
			recipeIDs = append(recipeIDs, c.RecipeID)
		}
	}
	return n, recipeIDs, nil
}

func (m *MockCommentRepository) RemoveUserReactions(ctx context.Context, userID string) (int, []string, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, nil, s.Err
	}
	var recipeIDs []string
	n := 0
	for _, c := range s.Comments {
		if !slices.Contains(c.LikedBy, userID) {
			continue
		}
		c.LikedBy = slices.DeleteFunc(c.LikedBy, func(u string) bool { return u == userID })
		c.Likes = len(c.LikedBy)
		n++
		if !slices.Contains(recipeIDs, c.RecipeID) {
			recipeIDs = append(recipeIDs, c.RecipeID)
		}
	}
	return n, recipeIDs, nil
}

func (m *MockCommentRepository) Count(ctx context.Context) (int, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Comments), s.Err
}

// MockLikeRepository is a mock implementation of LikeRepository
type MockLikeRepository struct {
	store *MockStore
}

// Verify interface compliance
var _ repository.LikeRepository = (*MockLikeRepository)(nil)

func (m *MockLikeRepository) Toggle(ctx context.Context, userID, recipeID string) (*models.LikeResult, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r, ok := s.Recipes[recipeID]
	if !ok {
		return nil, nil
	}
	key := pairKey(userID, recipeID)
	if s.Likes[key] {
		delete(s.Likes, key)
		if r.LikesCount > 0 {
			r.LikesCount--
		}
		return &models.LikeResult{Liked: false, LikesCount: r.LikesCount}, nil
	}
	s.Likes[key] = true
	r.LikesCount++
	return &models.LikeResult{Liked: true, LikesCount: r.LikesCount}, nil
}

func (m *MockLikeRepository) DeleteByUser(ctx context.Context, userID string) (int, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := 0
	for key := range s.Likes {
		uid, recipeID, _ := strings.Cut(key, "|")
		if uid != userID {
			continue
		}
		delete(s.Likes, key)
		n++
		if r, ok := s.Recipes[recipeID]; ok && r.LikesCount > 0 {
			r.LikesCount--
		}
	}
	return n, nil
}

// MockFavoriteRepository is a mock implementation of FavoriteRepository
type MockFavoriteRepository struct {
	store *MockStore
}

// Verify interface compliance
var _ repository.FavoriteRepository = (*MockFavoriteRepository)(nil)

func (m *MockFavoriteRepository) Toggle(ctx context.Context, userID, recipeID string) (bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	key := pairKey(userID, recipeID)
	if _, ok := s.Favorites[key]; ok {
		delete(s.Favorites, key)
		delete(s.favSeq, key)
		return false, nil
	}
	s.seq++
	s.favSeq[key] = s.seq
	s.Favorites[key] = &models.Favorite{UserID: userID, RecipeID: recipeID, CreatedAt: time.Now()}
	return true, nil
}

func (m *MockFavoriteRepository) ListByUser(ctx context.Context, userID string) ([]*models.Favorite, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	type entry struct {
		fav *models.Favorite
		seq int
	}
	entries := make([]entry, 0)
	for key, f := range s.Favorites {
		if f.UserID == userID {
			copied := *f
			entries = append(entries, entry{fav: &copied, seq: s.favSeq[key]})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	out := make([]*models.Favorite, len(entries))
	for i, e := range entries {
		out[i] = e.fav
	}
	return out, nil
}

func (m *MockFavoriteRepository) DeleteByUser(ctx context.Context, userID string) (int, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := 0
	for key, f := range s.Favorites {
		if f.UserID == userID {
			delete(s.Favorites, key)
			delete(s.favSeq, key)
			n++
		}
	}
	return n, nil
}
