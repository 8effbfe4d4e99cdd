package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/config"
	"github.com/rs/zerolog"
)

// ErrStreamClosed reports a stream that ended without the subscriber asking
var ErrStreamClosed = errors.New("comment stream closed")

const (
	eventSnapshot = "snapshot"
	eventError    = "error"

	defaultMaxBackoff = 30 * time.Second
)

// Feed is a comments.Source reading the server-sent comment stream
type Feed struct {
	baseURL    string
	httpClient *http.Client
	token      string
	retryDelay time.Duration
	maxBackoff time.Duration
	log        zerolog.Logger
}

// Verify interface compliance
var _ comments.Source = (*Feed)(nil)

// FeedOption configures a Feed
type FeedOption func(*Feed)

// WithFeedHTTPClient replaces the default client. It must not set a Timeout.
func WithFeedHTTPClient(hc *http.Client) FeedOption {
	return func(f *Feed) { f.httpClient = hc }
}

// WithFeedToken sets the bearer token; reads work without one
func WithFeedToken(token string) FeedOption {
	return func(f *Feed) { f.token = token }
}

// WithMaxBackoff caps the delay between reconnects
func WithMaxBackoff(d time.Duration) FeedOption {
	return func(f *Feed) { f.maxBackoff = d }
}

// WithFeedLogger sets the logger
func WithFeedLogger(log zerolog.Logger) FeedOption {
	return func(f *Feed) { f.log = log.With().Str("component", "remote_feed").Logger() }
}

// NewFeed creates a Feed for the endpoint selected by cfg
func NewFeed(cfg config.ClientConfig, opts ...FeedOption) *Feed {
	f := &Feed{
		baseURL:    cfg.BaseURL(),
		httpClient: &http.Client{},
		retryDelay: cfg.RetryDelay,
		maxBackoff: defaultMaxBackoff,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.retryDelay <= 0 {
		f.retryDelay = time.Second
	}
	return f
}

// Subscribe connects once before returning, so an unknown recipe or an
// unreachable server fails here. Later drops go to onError and the feed
// reconnects until unsubscribe is called or ctx ends. No callback runs after
// unsubscribe returns.
func (f *Feed) Subscribe(ctx context.Context, recipeID string, onSnapshot func([]comments.Comment), onError func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	body, err := f.connect(ctx, recipeID)
	if err != nil {
		cancel()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.run(ctx, recipeID, body, onSnapshot, onError)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func (f *Feed) run(ctx context.Context, recipeID string, body io.ReadCloser, onSnapshot func([]comments.Comment), onError func(error)) {
	log := f.log.With().Str("recipe_id", recipeID).Logger()
	attempt := 0

	for {
		err := consume(body, func(list []comments.Comment) {
			attempt = 0
			onSnapshot(list)
		})
		body.Close()
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrStreamClosed
		}
		log.Warn().Err(err).Msg("Comment stream dropped")
		onError(err)

		for {
			delay := f.backoff(attempt)
			attempt++
			if !sleep(ctx, delay) {
				return
			}

			body, err = f.connect(ctx, recipeID)
			if err == nil {
				log.Info().Int("attempt", attempt).Msg("Comment stream reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			onError(err)
		}
	}
}

func (f *Feed) backoff(attempt int) time.Duration {
	d := time.Duration(attempt+1) * f.retryDelay
	if f.maxBackoff > 0 && d > f.maxBackoff {
		return f.maxBackoff
	}
	return d
}

func (f *Feed) connect(ctx context.Context, recipeID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/recipes/"+url.PathEscape(recipeID)+"/comments/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// consume reads events until the stream ends. It returns nil on a clean EOF.
func consume(r io.Reader, onSnapshot func([]comments.Comment)) error {
	reader := bufio.NewReader(r)
	var event string
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if err := dispatch(event, data.String(), onSnapshot); err != nil {
				return err
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment line
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func dispatch(event, data string, onSnapshot func([]comments.Comment)) error {
	switch event {
	case eventSnapshot:
		var list []comments.Comment
		if err := json.Unmarshal([]byte(data), &list); err != nil {
			return fmt.Errorf("invalid snapshot: %w", err)
		}
		if list == nil {
			list = []comments.Comment{}
		}
		onSnapshot(list)
	case eventError:
		return fmt.Errorf("%w: server reported %s", ErrStreamClosed, strings.TrimSpace(data))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
