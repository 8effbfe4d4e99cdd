package mocks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/realtime"
	"github.com/recipememo-api/internal/service"
)

// MockImageStore keeps uploaded images in memory
type MockImageStore struct {
	mu      sync.Mutex
	Files   map[string][]byte
	Deleted []string
	SaveErr error
	n       int
}

// Verify interface compliance
var _ service.ImageStore = (*MockImageStore)(nil)

func NewMockImageStore() *MockImageStore {
	return &MockImageStore{Files: make(map[string][]byte)}
}

func (m *MockImageStore) Save(ctx context.Context, ext string, r io.Reader) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	url := fmt.Sprintf("/uploads/test-%d%s", m.n, ext)
	m.Files[url] = data
	return url, nil
}

func (m *MockImageStore) Delete(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Files[url]; !ok {
		return errors.New("no such image")
	}
	delete(m.Files, url)
	m.Deleted = append(m.Deleted, url)
	return nil
}

// MockBroker records publishes and forwards them to an in-memory broker
type MockBroker struct {
	*realtime.MemoryBroker
	mu         sync.Mutex
	Published  []string
	PublishErr error
}

// Verify interface compliance
var _ realtime.Broker = (*MockBroker)(nil)

func NewMockBroker() *MockBroker {
	return &MockBroker{MemoryBroker: realtime.NewMemoryBroker()}
}

func (m *MockBroker) Publish(ctx context.Context, recipeID string) error {
	m.mu.Lock()
	m.Published = append(m.Published, recipeID)
	err := m.PublishErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryBroker.Publish(ctx, recipeID)
}

// PublishCount returns how many publishes targeted recipeID
func (m *MockBroker) PublishCount(recipeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.Published {
		if id == recipeID {
			n++
		}
	}
	return n
}

// MockCommentService is a mock implementation of CommentService
type MockCommentService struct {
	ListFunc        func(ctx context.Context, recipeID string) ([]*models.Comment, error)
	CreateFunc      func(ctx context.Context, author comments.Identity, recipeID, text, key string) (*models.Comment, bool, error)
	DeleteFunc      func(ctx context.Context, requester comments.Identity, commentID string) error
	SetReactionFunc func(ctx context.Context, user comments.Identity, commentID string, liked bool) (*models.Comment, error)
	SubscribeFunc   func(ctx context.Context, recipeID string) (*realtime.Subscription, error)
	Total           int
}

// Verify interface compliance
var _ service.CommentService = (*MockCommentService)(nil)

func NewMockCommentService() *MockCommentService {
	return &MockCommentService{}
}

func (m *MockCommentService) List(ctx context.Context, recipeID string) ([]*models.Comment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, recipeID)
	}
	return []*models.Comment{}, nil
}

func (m *MockCommentService) Create(ctx context.Context, author comments.Identity, recipeID, text, key string) (*models.Comment, bool, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, author, recipeID, text, key)
	}
	return &models.Comment{ID: "mock-comment", RecipeID: recipeID, UserID: author.UserID, Text: text, LikedBy: []string{}}, false, nil
}

func (m *MockCommentService) Delete(ctx context.Context, requester comments.Identity, commentID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, requester, commentID)
	}
	return nil
}

func (m *MockCommentService) SetReaction(ctx context.Context, user comments.Identity, commentID string, liked bool) (*models.Comment, error) {
	if m.SetReactionFunc != nil {
		return m.SetReactionFunc(ctx, user, commentID, liked)
	}
	return nil, service.ErrNotFound
}

func (m *MockCommentService) Subscribe(ctx context.Context, recipeID string) (*realtime.Subscription, error) {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, recipeID)
	}
	return nil, service.ErrNotFound
}

func (m *MockCommentService) Count(ctx context.Context) (int, error) {
	return m.Total, nil
}
