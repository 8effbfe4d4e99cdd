package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/recipememo-api/internal/service"
	"github.com/rs/zerolog"
)

// FavoriteHandler handles favorites and account data removal
type FavoriteHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewFavoriteHandler creates a new FavoriteHandler
func NewFavoriteHandler(services *service.Services, log zerolog.Logger) *FavoriteHandler {
	return &FavoriteHandler{
		services: services,
		log:      log.With().Str("handler", "favorite").Logger(),
	}
}

// Toggle handles POST /api/favorites/:recipe_id
func (h *FavoriteHandler) Toggle(c *gin.Context) {
	result, err := h.services.Favorite.Toggle(c.Request.Context(), identity(c), c.Param("recipe_id"))
	if err != nil {
		respondError(c, h.log, err, "toggle favorite")
		return
	}
	c.JSON(http.StatusOK, result)
}

// List handles GET /api/favorites
func (h *FavoriteHandler) List(c *gin.Context) {
	favorites, err := h.services.Favorite.List(c.Request.Context(), identity(c))
	if err != nil {
		respondError(c, h.log, err, "list favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(favorites),
		"favorites": favorites,
	})
}

// DeleteUserData handles DELETE /api/users/me/data
func (h *FavoriteHandler) DeleteUserData(c *gin.Context) {
	summary, err := h.services.Account.DeleteUserData(c.Request.Context(), identity(c))
	if err != nil {
		respondError(c, h.log, err, "delete user data")
		return
	}

	h.log.Info().Str("user_id", identity(c).UserID).Msg("User data removal requested")
	c.JSON(http.StatusOK, gin.H{"deleted": summary})
}
