package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/recipememo-api/internal/config"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/service"
	"github.com/recipememo-api/internal/validation"
	"github.com/rs/zerolog"
)

// SSE event names
const (
	EventSnapshot = "snapshot"
	EventPing     = "ping"
	EventError    = "error"
)

const defaultPingInterval = 15 * time.Second

// CommentHandler handles comment endpoints and the comment stream
type CommentHandler struct {
	comments     service.CommentService
	validator    *validation.Validator
	pingInterval time.Duration
	log          zerolog.Logger
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *CommentHandler {
	ping := cfg.Realtime.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	return &CommentHandler{
		comments:     services.Comment,
		validator:    validation.NewValidator(cfg.Comments.MaxLength),
		pingInterval: ping,
		log:          log.With().Str("handler", "comment").Logger(),
	}
}

// List handles GET /api/recipes/:id/comments
func (h *CommentHandler) List(c *gin.Context) {
	list, err := h.comments.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "list comments")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Stream handles GET /api/recipes/:id/comments/stream
// Sends the full list on connect and again after every change
func (h *CommentHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	recipeID := c.Param("id")

	sub, err := h.comments.Subscribe(ctx, recipeID)
	if err != nil {
		respondError(c, h.log, err, "subscribe to comments")
		return
	}
	defer sub.Close()

	list, err := h.comments.List(ctx, recipeID)
	if err != nil {
		respondError(c, h.log, err, "list comments")
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(EventSnapshot, list)
	c.Writer.Flush()

	h.log.Debug().Str("recipe_id", recipeID).Msg("Comment stream opened")

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.SSEvent(EventPing, time.Now().UTC().Format(time.RFC3339))
			return true
		case <-sub.C():
			list, err := h.comments.List(ctx, recipeID)
			if err != nil {
				h.log.Warn().Err(err).Str("recipe_id", recipeID).Msg("Failed to refresh comment stream")
				c.SSEvent(EventError, gin.H{"error": "failed to list comments"})
				return false
			}
			c.SSEvent(EventSnapshot, list)
			return true
		}
	})

	h.log.Debug().Str("recipe_id", recipeID).Msg("Comment stream closed")
}

// Create handles POST /api/recipes/:id/comments
// Repeating a request with the same Idempotency-Key answers 200 with the
// comment created the first time
func (h *CommentHandler) Create(c *gin.Context) {
	var in models.CommentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, validation.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}

	key := c.GetHeader("Idempotency-Key")
	comment, replayed, err := h.comments.Create(c.Request.Context(), identity(c), c.Param("id"), in.Text, key)
	if err != nil {
		respondError(c, h.log, err, "create comment")
		return
	}

	if replayed {
		c.JSON(http.StatusOK, comment)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// Delete handles DELETE /api/comments/:comment_id
func (h *CommentHandler) Delete(c *gin.Context) {
	if err := h.comments.Delete(c.Request.Context(), identity(c), c.Param("comment_id")); err != nil {
		respondError(c, h.log, err, "delete comment")
		return
	}
	c.Status(http.StatusNoContent)
}

// SetReaction handles PUT /api/comments/:comment_id/reaction
func (h *CommentHandler) SetReaction(c *gin.Context) {
	var in models.ReactionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, validation.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if errs := h.validator.ValidateReaction(&in); len(errs) > 0 {
		badRequest(c, errs...)
		return
	}

	comment, err := h.comments.SetReaction(c.Request.Context(), identity(c), c.Param("comment_id"), *in.Liked)
	if err != nil {
		respondError(c, h.log, err, "set reaction")
		return
	}
	c.JSON(http.StatusOK, comment)
}
