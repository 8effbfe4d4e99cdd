// Package realtime fans out "recipe comments changed" notifications to the
// stream handlers of every server instance.
package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a broker after Close
var ErrClosed = errors.New("broker closed")

// Broker notifies subscribers that a recipe's comments changed. Notifications
// carry no payload and coalesce: a slow subscriber sees at least one signal
// after the latest change, not one per change.
type Broker interface {
	Publish(ctx context.Context, recipeID string) error
	Subscribe(ctx context.Context, recipeID string) (*Subscription, error)
	Close() error
}

// Subscription receives change signals for one recipe
type Subscription struct {
	ch       chan struct{}
	once     sync.Once
	cancel   func()
	RecipeID string
}

func newSubscription(recipeID string) *Subscription {
	return &Subscription{ch: make(chan struct{}, 1), RecipeID: recipeID}
}

// C delivers a signal after each change
func (s *Subscription) C() <-chan struct{} {
	return s.ch
}

// Close stops delivery; it is safe to call more than once
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *Subscription) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// MemoryBroker is a single-process Broker
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// NewMemoryBroker creates an in-process broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*Subscription]struct{})}
}

// Publish signals every subscriber of recipeID
func (b *MemoryBroker) Publish(ctx context.Context, recipeID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[recipeID] {
		sub.notify()
	}
	return nil
}

// Subscribe registers a subscriber for recipeID
func (b *MemoryBroker) Subscribe(ctx context.Context, recipeID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := newSubscription(recipeID)
	if b.subs[recipeID] == nil {
		b.subs[recipeID] = make(map[*Subscription]struct{})
	}
	b.subs[recipeID][sub] = struct{}{}
	sub.cancel = func() { b.remove(sub) }
	subscribersGauge.Inc()
	return sub, nil
}

func (b *MemoryBroker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.RecipeID]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			subscribersGauge.Dec()
		}
		if len(set) == 0 {
			delete(b.subs, sub.RecipeID)
		}
	}
}

// Subscribers returns the number of live subscriptions for recipeID
func (b *MemoryBroker) Subscribers(recipeID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[recipeID])
}

// Close drops all subscriptions
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, set := range b.subs {
		subscribersGauge.Sub(float64(len(set)))
	}
	b.subs = make(map[string]map[*Subscription]struct{})
	return nil
}
