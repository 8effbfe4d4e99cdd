package remote_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/config"
	"github.com/recipememo-api/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records feed callbacks
type collector struct {
	mu        sync.Mutex
	snapshots [][]comments.Comment
	errs      []error
}

func (c *collector) onSnapshot(list []comments.Comment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, list)
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots), len(c.errs)
}

func (c *collector) last() []comments.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) == 0 {
		return nil
	}
	return c.snapshots[len(c.snapshots)-1]
}

func writeEvent(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event:%s\ndata:%s\n\n", event, data)
	w.(http.Flusher).Flush()
}

func feedFor(server *httptest.Server) *remote.Feed {
	cfg := config.ClientConfig{
		Environment:    config.EnvDevelopment,
		DevelopmentURL: server.URL + "/api",
		RetryDelay:     5 * time.Millisecond,
	}
	return remote.NewFeed(cfg, remote.WithFeedHTTPClient(server.Client()), remote.WithFeedToken("tok"))
}

func TestFeed_DeliversSnapshots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/recipes/r1/comments/stream", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "snapshot", `[{"id":"c1","user_id":"u1","text":"첫 댓글","created_at":"2026-03-01T12:00:00Z"}]`)
		writeEvent(w, "ping", "2026-03-01T12:00:01Z")
		fmt.Fprint(w, ": keepalive\n\n")
		writeEvent(w, "snapshot", `null`)
		<-r.Context().Done()
	}))
	defer server.Close()

	var got collector
	unsubscribe, err := feedFor(server).Subscribe(context.Background(), "r1", got.onSnapshot, got.onError)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, _ := got.counts()
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)
	unsubscribe()
	unsubscribe()

	got.mu.Lock()
	defer got.mu.Unlock()
	require.Len(t, got.snapshots[0], 1)
	assert.Equal(t, "첫 댓글", got.snapshots[0][0].Text)
	assert.NotNil(t, got.snapshots[1], "null snapshot decodes as empty list")
	assert.Empty(t, got.snapshots[1])
	assert.Empty(t, got.errs)
}

func TestFeed_ReconnectsAfterDrop(t *testing.T) {
	var connects int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&connects, 1)
		w.Header().Set("Content-Type", "text/event-stream")
		switch n {
		case 1:
			writeEvent(w, "snapshot", `[]`)
			// drop the connection
		case 2:
			http.Error(w, `{"error":"restarting"}`, http.StatusServiceUnavailable)
		default:
			writeEvent(w, "snapshot", `[{"id":"c9","user_id":"u1","text":"back","created_at":"2026-03-01T12:00:00Z"}]`)
			<-r.Context().Done()
		}
	}))
	defer server.Close()

	var got collector
	unsubscribe, err := feedFor(server).Subscribe(context.Background(), "r1", got.onSnapshot, got.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		last := got.last()
		return len(last) == 1 && last[0].ID == "c9"
	}, 2*time.Second, 5*time.Millisecond)

	_, errCount := got.counts()
	assert.Equal(t, 2, errCount, "one drop and one failed reconnect")

	got.mu.Lock()
	assert.ErrorIs(t, got.errs[0], remote.ErrStreamClosed)
	var se *remote.StatusError
	assert.True(t, errors.As(got.errs[1], &se) && se.StatusCode == http.StatusServiceUnavailable)
	got.mu.Unlock()
}

func TestFeed_ServerErrorEventTriggersReconnect(t *testing.T) {
	var connects int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if atomic.AddInt32(&connects, 1) == 1 {
			writeEvent(w, "error", `{"error":"failed to list comments"}`)
			<-r.Context().Done()
			return
		}
		writeEvent(w, "snapshot", `[]`)
		<-r.Context().Done()
	}))
	defer server.Close()

	var got collector
	unsubscribe, err := feedFor(server).Subscribe(context.Background(), "r1", got.onSnapshot, got.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		n, _ := got.counts()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, errCount := got.counts()
	assert.Equal(t, 1, errCount)
}

func TestFeed_InitialFailureIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	var got collector
	unsubscribe, err := feedFor(server).Subscribe(context.Background(), "missing", got.onSnapshot, got.onError)

	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Nil(t, unsubscribe)
	_, errCount := got.counts()
	assert.Zero(t, errCount)
}

func TestFeed_StopsWhenContextEnds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "snapshot", `[]`)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var got collector
	unsubscribe, err := feedFor(server).Subscribe(ctx, "r1", got.onSnapshot, got.onError)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, _ := got.counts()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	unsubscribe()

	_, errCount := got.counts()
	assert.Zero(t, errCount, "a cancelled feed is not a failure")
}
