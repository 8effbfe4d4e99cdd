package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/recipememo-api/internal/auth"
	"github.com/recipememo-api/internal/config"
	"github.com/recipememo-api/internal/service"
	"github.com/rs/zerolog"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter creates and configures the Gin router. db may be nil.
func NewRouter(services *service.Services, cfg *config.Config, db HealthChecker, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	registry := prometheus.NewRegistry()
	metrics := newMetrics(registry)

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(metrics.middleware())
	router.Use(corsMiddleware())

	authMW := auth.NewMiddleware(cfg.Auth.JWTSecret, log)

	// Handlers
	recipeHandler := NewRecipeHandler(services, cfg, log)
	commentHandler := NewCommentHandler(services, cfg, log)
	favoriteHandler := NewFavoriteHandler(services, log)

	// Operational endpoints
	router.GET("/health", healthCheck(db))
	router.GET("/stats", statsHandler(services))
	router.GET("/metrics", metricsHandler(registry))

	if cfg.Upload.Serve && cfg.Upload.Dir != "" {
		router.Static("/uploads", cfg.Upload.Dir)
	}

	api := router.Group("/api", authMW.Optional())
	{
		recipes := api.Group("/recipes")
		{
			recipes.POST("", authMW.Required(), recipeHandler.Create)
			recipes.GET("/popular", recipeHandler.ListPopular)
			recipes.GET("/search", recipeHandler.Search)
			recipes.GET("/category/:category", recipeHandler.ListByCategory)
			recipes.GET("/category/:category/:id", recipeHandler.GetInCategory)
			recipes.GET("/user/:uid", recipeHandler.ListByAuthor)
			recipes.GET("/:id", recipeHandler.Get)
			recipes.PUT("/:id", authMW.Required(), recipeHandler.Update)
			recipes.DELETE("/:id", authMW.Required(), recipeHandler.Delete)
			recipes.GET("/:id/stats", recipeHandler.Stats)
			recipes.POST("/:id/like", authMW.Required(), recipeHandler.ToggleLike)

			recipes.GET("/:id/comments", commentHandler.List)
			recipes.GET("/:id/comments/stream", commentHandler.Stream)
			recipes.POST("/:id/comments", authMW.Required(), commentHandler.Create)
		}

		commentsGroup := api.Group("/comments", authMW.Required())
		{
			commentsGroup.DELETE("/:comment_id", commentHandler.Delete)
			commentsGroup.PUT("/:comment_id/reaction", commentHandler.SetReaction)
		}

		favorites := api.Group("/favorites", authMW.Required())
		{
			favorites.GET("", favoriteHandler.List)
			favorites.POST("/:recipe_id", favoriteHandler.Toggle)
		}

		api.DELETE("/users/me/data", authMW.Required(), favoriteHandler.DeleteUserData)
	}

	return router
}

// healthCheck returns the health status
func healthCheck(db HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if db != nil {
			ctx, cancel := contextWithTimeout(c, 2*time.Second)
			defer cancel()
			if err := db.HealthCheck(ctx); err != nil {
				status, code = "unhealthy", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "recipememo-api",
		})
	}
}

// statsHandler returns content counters
func statsHandler(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		recipesCount, _ := services.Recipe.Count(ctx)
		commentsCount, _ := services.Comment.Count(ctx)

		c.JSON(http.StatusOK, gin.H{
			"database": gin.H{
				"recipes":  recipesCount,
				"comments": commentsCount,
			},
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("path", c.Request.URL.Path).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextWithTimeout creates a context with timeout for handlers
func contextWithTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), timeout)
}
