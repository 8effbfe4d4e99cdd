package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/recipememo-api/internal/comments"
	"github.com/rs/zerolog"
)

const identityKey = "auth.identity"

// Middleware resolves bearer tokens into identities
type Middleware struct {
	secret []byte
	log    zerolog.Logger
}

// NewMiddleware creates a Middleware verifying tokens with secret
func NewMiddleware(secret string, log zerolog.Logger) *Middleware {
	return &Middleware{
		secret: []byte(secret),
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// Optional attaches the identity when a valid token is present and passes
// anonymous requests through. A present but invalid token is rejected.
func (m *Middleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		m.authenticate(c)
	}
}

// Required rejects requests without a valid token
func (m *Middleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		m.authenticate(c)
	}
}

func (m *Middleware) authenticate(c *gin.Context) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
		return
	}

	identity, err := ParseToken(strings.TrimSpace(parts[1]), m.secret)
	if err != nil {
		m.log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Token rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	c.Set(identityKey, identity)
	c.Next()
}

// IdentityFrom returns the identity attached by the middleware
func IdentityFrom(c *gin.Context) (comments.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return comments.Identity{}, false
	}
	identity, ok := v.(comments.Identity)
	return identity, ok
}

// SetIdentity attaches an identity, for tests and trusted internal callers
func SetIdentity(c *gin.Context, identity comments.Identity) {
	c.Set(identityKey, identity)
}
