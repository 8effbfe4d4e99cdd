package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/recipememo-api/internal/config"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/service"
	"github.com/recipememo-api/internal/validation"
	"github.com/rs/zerolog"
)

// multipart overhead allowed on top of the image size limit
const formOverhead = 1 << 20

var sniffedExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// RecipeHandler handles recipe endpoints
type RecipeHandler struct {
	services *service.Services
	upload   config.UploadConfig
	log      zerolog.Logger
}

// NewRecipeHandler creates a new RecipeHandler
func NewRecipeHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *RecipeHandler {
	return &RecipeHandler{
		services: services,
		upload:   cfg.Upload,
		log:      log.With().Str("handler", "recipe").Logger(),
	}
}

// Create handles POST /api/recipes
// Accepts multipart (recipe JSON part + optional imageFile) or a JSON body
func (h *RecipeHandler) Create(c *gin.Context) {
	in, image, closer, ok := h.readRecipe(c)
	if !ok {
		return
	}
	defer closer()

	recipe, err := h.services.Recipe.Create(c.Request.Context(), identity(c), in, image)
	if err != nil {
		respondError(c, h.log, err, "create recipe")
		return
	}

	c.JSON(http.StatusCreated, recipe)
}

// Update handles PUT /api/recipes/:id
func (h *RecipeHandler) Update(c *gin.Context) {
	in, image, closer, ok := h.readRecipe(c)
	if !ok {
		return
	}
	defer closer()

	recipe, err := h.services.Recipe.Update(c.Request.Context(), identity(c), c.Param("id"), in, image)
	if err != nil {
		respondError(c, h.log, err, "update recipe")
		return
	}

	c.JSON(http.StatusOK, recipe)
}

// Delete handles DELETE /api/recipes/:id
func (h *RecipeHandler) Delete(c *gin.Context) {
	if err := h.services.Recipe.Delete(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		respondError(c, h.log, err, "delete recipe")
		return
	}
	c.Status(http.StatusNoContent)
}

// Get handles GET /api/recipes/:id
func (h *RecipeHandler) Get(c *gin.Context) {
	recipe, err := h.services.Recipe.Get(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "get recipe")
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// GetInCategory handles GET /api/recipes/category/:category/:id
func (h *RecipeHandler) GetInCategory(c *gin.Context) {
	recipe, err := h.services.Recipe.GetInCategory(c.Request.Context(), identity(c).UserID, c.Param("category"), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "get recipe")
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// ListByCategory handles GET /api/recipes/category/:category
func (h *RecipeHandler) ListByCategory(c *gin.Context) {
	recipes, err := h.services.Recipe.ListByCategory(c.Request.Context(), c.Param("category"), queryLimit(c))
	if err != nil {
		respondError(c, h.log, err, "list recipes")
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// Search handles GET /api/recipes/search?title=
func (h *RecipeHandler) Search(c *gin.Context) {
	recipes, err := h.services.Recipe.Search(c.Request.Context(), c.Query("title"), queryLimit(c))
	if err != nil {
		respondError(c, h.log, err, "search recipes")
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// ListByAuthor handles GET /api/recipes/user/:uid
func (h *RecipeHandler) ListByAuthor(c *gin.Context) {
	recipes, err := h.services.Recipe.ListByAuthor(c.Request.Context(), identity(c).UserID, c.Param("uid"), queryLimit(c))
	if err != nil {
		respondError(c, h.log, err, "list recipes")
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// ListPopular handles GET /api/recipes/popular?limit=
func (h *RecipeHandler) ListPopular(c *gin.Context) {
	recipes, err := h.services.Recipe.ListPopular(c.Request.Context(), queryLimit(c))
	if err != nil {
		respondError(c, h.log, err, "list recipes")
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// Stats handles GET /api/recipes/:id/stats
func (h *RecipeHandler) Stats(c *gin.Context) {
	stats, err := h.services.Recipe.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "get stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ToggleLike handles POST /api/recipes/:id/like
func (h *RecipeHandler) ToggleLike(c *gin.Context) {
	result, err := h.services.Recipe.ToggleLike(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "toggle like")
		return
	}
	c.JSON(http.StatusOK, result)
}

// readRecipe parses the request body. On failure it has already answered
// and ok is false; otherwise closer releases the uploaded file.
func (h *RecipeHandler) readRecipe(c *gin.Context) (in *models.RecipeInput, image *service.Image, closer func(), ok bool) {
	closer = func() {}
	in = &models.RecipeInput{}

	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(in); err != nil {
			badRequest(c, validation.ValidationError{Field: "body", Message: "invalid JSON body"})
			return nil, nil, closer, false
		}
		return in, nil, closer, true
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.upload.MaxFileSize+formOverhead)

	raw := c.PostForm("recipe")
	if raw == "" {
		badRequest(c, validation.ValidationError{Field: "recipe", Message: "recipe is required"})
		return nil, nil, closer, false
	}
	if err := json.Unmarshal([]byte(raw), in); err != nil {
		badRequest(c, validation.ValidationError{Field: "recipe", Message: "recipe must be valid JSON"})
		return nil, nil, closer, false
	}

	file, header, err := c.Request.FormFile("imageFile")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, closer, true
	}
	if err != nil {
		badRequest(c, validation.ValidationError{Field: "imageFile", Message: "failed to read image"})
		return nil, nil, closer, false
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		file.Close()
		h.log.Error().Err(err).Str("file", header.Filename).Msg("Failed to read upload")
		badRequest(c, validation.ValidationError{Field: "imageFile", Message: "failed to read image"})
		return nil, nil, closer, false
	}
	head = head[:n]

	if verr := validation.ValidateImage(header, head, h.upload.MaxFileSize, h.upload.AllowedTypes); verr != nil {
		file.Close()
		badRequest(c, *verr)
		return nil, nil, closer, false
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = sniffedExt[http.DetectContentType(head)]
	}

	h.log.Debug().
		Str("file", header.Filename).
		Int64("size_bytes", header.Size).
		Msg("Image upload accepted")

	image = &service.Image{Ext: ext, Reader: io.MultiReader(bytes.NewReader(head), file)}
	return in, image, func() { file.Close() }, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}
