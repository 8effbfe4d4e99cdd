package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/recipememo-api/internal/auth"
	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/service"
	"github.com/recipememo-api/internal/validation"
	"github.com/rs/zerolog"
)

// respondError maps service errors to status codes. Unexpected errors are
// logged and answered with "failed to <action>".
func respondError(c *gin.Context, log zerolog.Logger, err error, action string) {
	var inputErr *service.InputError
	switch {
	case errors.As(err, &inputErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": inputErr.Errors})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Failed to " + action)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}

func badRequest(c *gin.Context, errs ...validation.ValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": errs})
}

// identity returns the caller; handlers behind auth.Required always have one
func identity(c *gin.Context) comments.Identity {
	id, _ := auth.IdentityFrom(c)
	return id
}
