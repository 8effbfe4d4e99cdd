// Package remote talks to the recipememo API on behalf of a comments.Controller:
// Client performs the writes and Feed follows the comment stream.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/config"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("comment service unavailable")

// StatusError is a non-2xx answer from the API
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying may help
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client is a comments.Remote backed by the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	maxRetries int
	retryDelay time.Duration
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// Verify interface compliance
var _ comments.Remote = (*Client)(nil)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default client, which only sets the timeout
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithClientLogger sets the logger
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log.With().Str("component", "remote_client").Logger() }
}

// WithBreakerSettings replaces the default breaker settings. IsSuccessful is
// always set so that 4xx answers do not count as failures.
func WithBreakerSettings(st gobreaker.Settings) ClientOption {
	return func(c *Client) {
		st.IsSuccessful = breakerSuccess
		c.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

// DefaultBreakerSettings trips after 60% of at least 3 calls failed and lets a trial call through after 3s
func DefaultBreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 100,
		Interval:    5 * time.Second,
		Timeout:     3 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: breakerSuccess,
	}
}

// NewClient creates a Client for the endpoint selected by cfg
func NewClient(cfg config.ClientConfig, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL(),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker(DefaultBreakerSettings("recipememo-api"))
	}
	return c
}

type createCommentRequest struct {
	Text string `json:"text"`
}

type reactionRequest struct {
	Liked bool `json:"liked"`
}

// CreateComment posts a comment. The server takes the author from the bearer
// token; an idempotency key on ctx is sent so a retried create is not duplicated.
func (c *Client) CreateComment(ctx context.Context, recipeID, authorID, authorName, text string) (comments.Comment, error) {
	var created comments.Comment
	err := c.do(ctx, http.MethodPost, "/recipes/"+url.PathEscape(recipeID)+"/comments", createCommentRequest{Text: text}, &created)
	if err != nil {
		return comments.Comment{}, err
	}
	if created.AuthorID != "" && authorID != "" && created.AuthorID != authorID {
		c.log.Warn().Str("expected", authorID).Str("got", created.AuthorID).Msg("Comment stored under a different author")
	}
	return created, nil
}

// DeleteComment deletes a comment; a comment that is already gone counts as deleted
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	err := c.do(ctx, http.MethodDelete, "/comments/"+url.PathEscape(commentID), nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// SetReaction sets the caller's like on a comment; userID must match the token
func (c *Client) SetReaction(ctx context.Context, commentID, userID string, liked bool) error {
	return c.do(ctx, http.MethodPut, "/comments/"+url.PathEscape(commentID)+"/reaction", reactionRequest{Liked: liked}, nil)
}

// ListComments fetches a recipe's comments newest first
func (c *Client) ListComments(ctx context.Context, recipeID string) ([]comments.Comment, error) {
	var list []comments.Comment
	if err := c.do(ctx, http.MethodGet, "/recipes/"+url.PathEscape(recipeID)+"/comments", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.withRetry(ctx, method, path, func() error {
			return c.once(ctx, method, path, payload, out)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// withRetry retries network errors and 5xx answers with a linearly growing delay
func (c *Client) withRetry(ctx context.Context, method, path string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || attempt >= c.maxRetries || !retryable(ctx, err) {
			return err
		}

		delay := time.Duration(attempt+1) * c.retryDelay
		c.log.Warn().
			Err(err).
			Str("method", method).
			Str("path", path).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("Request failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if key, ok := comments.IdempotencyKeyFrom(ctx); ok {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) *StatusError {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// breakerSuccess keeps client errors (4xx) from tripping the breaker
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && !se.Temporary()
}
