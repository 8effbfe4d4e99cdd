package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) bool {
	t.Helper()
	select {
	case <-sub.C():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestMemoryBroker_PublishReachesSubscribers(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	s1, err := b.Subscribe(ctx, "r1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	s2, _ := b.Subscribe(ctx, "r1")
	other, _ := b.Subscribe(ctx, "r2")

	if err := b.Publish(ctx, "r1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if !receive(t, s1) || !receive(t, s2) {
		t.Error("Expected both r1 subscribers to be signalled")
	}
	if receive(t, other) {
		t.Error("r2 subscriber should not be signalled")
	}
}

func TestMemoryBroker_Coalesces(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, _ := b.Subscribe(ctx, "r1")
	for i := 0; i < 5; i++ {
		if err := b.Publish(ctx, "r1"); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	if !receive(t, sub) {
		t.Fatal("Expected a signal")
	}
	if receive(t, sub) {
		t.Error("Bursts should coalesce into one pending signal")
	}
}

func TestMemoryBroker_Unsubscribe(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, _ := b.Subscribe(ctx, "r1")
	if n := b.Subscribers("r1"); n != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", n)
	}

	sub.Close()
	sub.Close()

	if n := b.Subscribers("r1"); n != 0 {
		t.Errorf("Expected 0 subscribers, got %d", n)
	}
	_ = b.Publish(ctx, "r1")
	if receive(t, sub) {
		t.Error("Closed subscription should not be signalled")
	}
}

func TestMemoryBroker_Closed(t *testing.T) {
	b := NewMemoryBroker()
	b.Close()

	if _, err := b.Subscribe(context.Background(), "r1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := b.Publish(context.Background(), "r1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestChannelName(t *testing.T) {
	if got := channel("abc"); got != "recipememo:comments:abc" {
		t.Errorf("Expected recipememo:comments:abc, got %q", got)
	}
}
