package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "recipememo:comments:"

// RedisBroker relays notifications through Redis pub/sub so that every
// instance behind a load balancer sees every write
type RedisBroker struct {
	client *redis.Client
	log    zerolog.Logger
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewRedisBroker connects to Redis and verifies the connection
func NewRedisBroker(ctx context.Context, opts *redis.Options, log zerolog.Logger) (*RedisBroker, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connect error: %w", err)
	}
	return NewRedisBrokerWithClient(client, log), nil
}

// NewRedisBrokerWithClient wraps an existing client
func NewRedisBrokerWithClient(client *redis.Client, log zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		log:    log.With().Str("component", "redis_broker").Logger(),
		subs:   make(map[*Subscription]struct{}),
	}
}

func channel(recipeID string) string {
	return channelPrefix + recipeID
}

// Publish sends a change notification for recipeID
func (b *RedisBroker) Publish(ctx context.Context, recipeID string) error {
	if err := b.client.Publish(ctx, channel(recipeID), recipeID).Err(); err != nil {
		return fmt.Errorf("failed to publish comment change: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription for recipeID
func (b *RedisBroker) Subscribe(ctx context.Context, recipeID string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel(recipeID))
	// Receive blocks until Redis confirms the subscription
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to comment changes: %w", err)
	}

	sub := newSubscription(recipeID)
	done := make(chan struct{})
	sub.cancel = func() {
		close(done)
		if err := pubsub.Close(); err != nil {
			b.log.Debug().Err(err).Str("recipe_id", recipeID).Msg("Closing pubsub")
		}
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		subscribersGauge.Dec()
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	subscribersGauge.Inc()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				sub.notify()
			}
		}
	}()

	return sub, nil
}

// Close ends every subscription, waits for the relay goroutines and closes the client
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	open := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		open = append(open, sub)
	}
	b.mu.Unlock()

	for _, sub := range open {
		sub.Close()
	}
	b.wg.Wait()
	return b.client.Close()
}
