package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/recipememo-api/internal/api"
	"github.com/recipememo-api/internal/auth"
	"github.com/recipememo-api/internal/config"
	"github.com/recipememo-api/internal/mocks"
	"github.com/recipememo-api/internal/models"
	"github.com/recipememo-api/internal/service"
	"github.com/rs/zerolog"
)

const testSecret = "test-secret"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type testEnv struct {
	router *gin.Engine
	store  *mocks.MockStore
	images *mocks.MockImageStore
	broker *mocks.MockBroker
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "8081"},
		Upload: config.UploadConfig{
			MaxFileSize:  5 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		},
		Auth:     config.AuthConfig{JWTSecret: testSecret},
		Realtime: config.RealtimeConfig{PingInterval: time.Hour},
		Comments: config.CommentsConfig{MaxLength: 200, IdempotencyTTL: time.Minute},
	}
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mocks.NewMockStore()
	images := mocks.NewMockImageStore()
	broker := mocks.NewMockBroker()
	t.Cleanup(func() { broker.Close() })

	cfg := testConfig()
	services := service.NewServices(store.Repositories(), broker, images, cfg, zerolog.Nop())

	return &testEnv{
		router: api.NewRouter(services, cfg, nil, zerolog.Nop()),
		store:  store,
		images: images,
		broker: broker,
	}
}

func token(t *testing.T, userID, name string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, name, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return "Bearer " + tok
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, authz string, body interface{}) *http.Request {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return req
}

func multipartRequest(t *testing.T, method, path, authz string, recipe interface{}, image []byte, imageType string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	data, _ := json.Marshal(recipe)
	if err := mw.WriteField("recipe", string(data)); err != nil {
		t.Fatalf("WriteField failed: %v", err)
	}

	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="imageFile"; filename="dish.png"`)
		h.Set("Content-Type", imageType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart failed: %v", err)
		}
		part.Write(image)
	}
	mw.Close()

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return req
}

func validRecipe() map[string]interface{} {
	return map[string]interface{}{
		"title":       "비빔밥",
		"category":    "한식",
		"difficulty":  "보통",
		"ingredients": []string{"밥", "나물"},
		"steps":       []string{"비비기"},
	}
}

func (e *testEnv) seedRecipe(author string, public bool) *models.Recipe {
	r := &models.Recipe{
		ID:       uuid.New().String(),
		Title:    "잡채",
		Category: models.CategoryKorean,
		Steps:    []string{"볶기"},
		AuthorID: author,
		IsPublic: public,
	}
	e.store.AddRecipe(r)
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", w.Body.String(), err)
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(ctx context.Context) error { return f.err }

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	decode(t, w, &response)
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "recipememo-api" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestHealthEndpoint_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	store := mocks.NewMockStore()
	broker := mocks.NewMockBroker()
	defer broker.Close()
	services := service.NewServices(store.Repositories(), broker, mocks.NewMockImageStore(), cfg, zerolog.Nop())
	router := api.NewRouter(services, cfg, fakeHealth{err: errors.New("down")}, zerolog.Nop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := setupTestRouter(t)
	r := env.seedRecipe("alice", true)
	env.seedRecipe("alice", true)
	env.store.AddComment(&models.Comment{ID: uuid.New().String(), RecipeID: r.ID, UserID: "bob", Text: "hi"})

	w := env.do(httptest.NewRequest("GET", "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]map[string]float64
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["database"]["recipes"] != 2 || response["database"]["comments"] != 1 {
		t.Errorf("Unexpected counters: %v", response["database"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(t)
	env.do(httptest.NewRequest("GET", "/health", nil))

	w := env.do(httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"recipememo_http_requests_total", "recipememo_realtime_subscribers"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(httptest.NewRequest("OPTIONS", "/api/recipes", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Error("Authorization should be an allowed header")
	}
}

func TestCreateRecipe_Multipart(t *testing.T) {
	env := setupTestRouter(t)

	req := multipartRequest(t, "POST", "/api/recipes", token(t, "alice", "Alice"), validRecipe(), pngHeader, "image/png")
	w := env.do(req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var recipe models.Recipe
	decode(t, w, &recipe)
	if recipe.Category != models.CategoryKorean {
		t.Errorf("Expected KOREAN, got %s", recipe.Category)
	}
	if recipe.AuthorID != "alice" {
		t.Errorf("Expected author alice, got %q", recipe.AuthorID)
	}
	if data, ok := env.images.Files[recipe.ImageURL]; !ok || !bytes.Equal(data, pngHeader) {
		t.Errorf("Expected image stored at %q", recipe.ImageURL)
	}
}

func TestCreateRecipe_JSONBody(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(jsonRequest("POST", "/api/recipes", token(t, "alice", "Alice"), validRecipe()))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.images.Files) != 0 {
		t.Error("JSON body should carry no image")
	}
}

func TestCreateRecipe_Rejections(t *testing.T) {
	env := setupTestRouter(t)
	alice := token(t, "alice", "Alice")

	noSteps := validRecipe()
	noSteps["steps"] = []string{}

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"no token", multipartRequest(t, "POST", "/api/recipes", "", validRecipe(), nil, ""), http.StatusUnauthorized},
		{"bad token", multipartRequest(t, "POST", "/api/recipes", "Bearer nope", validRecipe(), nil, ""), http.StatusUnauthorized},
		{"invalid fields", multipartRequest(t, "POST", "/api/recipes", alice, noSteps, nil, ""), http.StatusBadRequest},
		{"text posing as png", multipartRequest(t, "POST", "/api/recipes", alice, validRecipe(), []byte("plain text"), "image/png"), http.StatusBadRequest},
		{"declared type not allowed", multipartRequest(t, "POST", "/api/recipes", alice, validRecipe(), pngHeader, "application/pdf"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	if len(env.store.Recipes) != 0 {
		t.Errorf("Rejected requests must not store recipes, got %d", len(env.store.Recipes))
	}
}

func TestCreateRecipe_MissingRecipePart(t *testing.T) {
	env := setupTestRouter(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	mw.WriteField("other", "x")
	mw.Close()
	req := httptest.NewRequest("POST", "/api/recipes", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", token(t, "alice", "Alice"))

	w := env.do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	var response struct {
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	decode(t, w, &response)
	if len(response.Details) != 1 || response.Details[0].Field != "recipe" {
		t.Errorf("Expected recipe field error, got %s", w.Body.String())
	}
}

func TestRecipeOwnershipAndVisibility(t *testing.T) {
	env := setupTestRouter(t)
	private := env.seedRecipe("alice", false)
	path := "/api/recipes/" + private.ID

	if w := env.do(httptest.NewRequest("GET", path, nil)); w.Code != http.StatusNotFound {
		t.Errorf("Anonymous read of private recipe: expected 404, got %d", w.Code)
	}
	if w := env.do(jsonRequest("GET", path, token(t, "alice", "Alice"), nil)); w.Code != http.StatusOK {
		t.Errorf("Author read: expected 200, got %d", w.Code)
	}

	if w := env.do(jsonRequest("PUT", path, token(t, "bob", "Bob"), validRecipe())); w.Code != http.StatusForbidden {
		t.Errorf("Non-author update: expected 403, got %d", w.Code)
	}
	if w := env.do(jsonRequest("PUT", path, token(t, "alice", "Alice"), validRecipe())); w.Code != http.StatusOK {
		t.Errorf("Author update: expected 200, got %d", w.Code)
	}

	if w := env.do(jsonRequest("DELETE", path, token(t, "bob", "Bob"), nil)); w.Code != http.StatusForbidden {
		t.Errorf("Non-author delete: expected 403, got %d", w.Code)
	}
	if w := env.do(jsonRequest("DELETE", path, token(t, "alice", "Alice"), nil)); w.Code != http.StatusNoContent {
		t.Errorf("Author delete: expected 204, got %d", w.Code)
	}
}

func TestRecipeQueries(t *testing.T) {
	env := setupTestRouter(t)
	r := env.seedRecipe("alice", true)

	tests := []struct {
		path string
		want int
	}{
		{"/api/recipes/category/KOREAN", http.StatusOK},
		{"/api/recipes/category/" + url.PathEscape("한식"), http.StatusOK},
		{"/api/recipes/category/THAI", http.StatusBadRequest},
		{"/api/recipes/category/korean/" + r.ID, http.StatusOK},
		{"/api/recipes/category/WESTERN/" + r.ID, http.StatusNotFound},
		{"/api/recipes/search?title=" + url.QueryEscape("잡"), http.StatusOK},
		{"/api/recipes/search", http.StatusBadRequest},
		{"/api/recipes/user/alice", http.StatusOK},
		{"/api/recipes/popular?limit=5", http.StatusOK},
		{"/api/recipes/" + r.ID + "/stats", http.StatusOK},
		{"/api/recipes/not-a-uuid", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(httptest.NewRequest("GET", tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	w := env.do(httptest.NewRequest("GET", "/api/recipes/category/KOREAN", nil))
	var list []models.Recipe
	decode(t, w, &list)
	if len(list) != 1 || list[0].ID != r.ID {
		t.Errorf("Expected the seeded recipe, got %+v", list)
	}
}

func TestToggleLike(t *testing.T) {
	env := setupTestRouter(t)
	r := env.seedRecipe("alice", true)
	bob := token(t, "bob", "Bob")

	w := env.do(jsonRequest("POST", "/api/recipes/"+r.ID+"/like", bob, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var result models.LikeResult
	decode(t, w, &result)
	if !result.Liked || result.LikesCount != 1 {
		t.Errorf("Expected liked with 1 like, got %+v", result)
	}

	if w := env.do(jsonRequest("POST", "/api/recipes/"+r.ID+"/like", "", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("Anonymous like: expected 401, got %d", w.Code)
	}
}

func TestCommentLifecycle(t *testing.T) {
	env := setupTestRouter(t)
	r := env.seedRecipe("alice", true)
	bob := token(t, "bob", "Bob")
	alice := token(t, "alice", "Alice")
	commentsPath := "/api/recipes/" + r.ID + "/comments"

	req := jsonRequest("POST", commentsPath, bob, map[string]string{"text": "맛있어요"})
	req.Header.Set("Idempotency-Key", "pending-1")
	w := env.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created models.Comment
	decode(t, w, &created)
	if created.UserName != "Bob" || created.UserID != "bob" {
		t.Errorf("Unexpected author fields: %+v", created)
	}

	// retry with the same key
	req = jsonRequest("POST", commentsPath, bob, map[string]string{"text": "맛있어요"})
	req.Header.Set("Idempotency-Key", "pending-1")
	w = env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("Replay: expected status 200, got %d", w.Code)
	}
	var replayed models.Comment
	decode(t, w, &replayed)
	if replayed.ID != created.ID {
		t.Errorf("Replay returned %s, expected %s", replayed.ID, created.ID)
	}

	w = env.do(httptest.NewRequest("GET", commentsPath, nil))
	var list []models.Comment
	decode(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("Expected 1 comment, got %d", len(list))
	}

	reactionPath := "/api/comments/" + created.ID + "/reaction"
	w = env.do(jsonRequest("PUT", reactionPath, alice, map[string]bool{"liked": true}))
	if w.Code != http.StatusOK {
		t.Fatalf("Reaction: expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var liked models.Comment
	decode(t, w, &liked)
	if liked.Likes != 1 {
		t.Errorf("Expected 1 like, got %d", liked.Likes)
	}

	if w := env.do(jsonRequest("PUT", reactionPath, alice, map[string]string{})); w.Code != http.StatusBadRequest {
		t.Errorf("Reaction without liked: expected 400, got %d", w.Code)
	}

	if w := env.do(jsonRequest("DELETE", "/api/comments/"+created.ID, alice, nil)); w.Code != http.StatusForbidden {
		t.Errorf("Non-author delete: expected 403, got %d", w.Code)
	}
	if w := env.do(jsonRequest("DELETE", "/api/comments/"+created.ID, bob, nil)); w.Code != http.StatusNoContent {
		t.Errorf("Author delete: expected 204, got %d", w.Code)
	}

	if got := env.store.Recipe(r.ID).CommentsCount; got != 0 {
		t.Errorf("Expected comments_count 0, got %d", got)
	}
}

func TestCreateComment_Rejections(t *testing.T) {
	env := setupTestRouter(t)
	r := env.seedRecipe("alice", true)
	bob := token(t, "bob", "Bob")
	path := "/api/recipes/" + r.ID + "/comments"

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"anonymous", jsonRequest("POST", path, "", map[string]string{"text": "hi"}), http.StatusUnauthorized},
		{"blank text", jsonRequest("POST", path, bob, map[string]string{"text": "  "}), http.StatusBadRequest},
		{"too long", jsonRequest("POST", path, bob, map[string]string{"text": strings.Repeat("가", 201)}), http.StatusBadRequest},
		{"unknown recipe", jsonRequest("POST", "/api/recipes/"+uuid.New().String()+"/comments", bob, map[string]string{"text": "hi"}), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(tt.req); w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestCommentHandler_InternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockComments := mocks.NewMockCommentService()
	mockComments.ListFunc = func(ctx context.Context, recipeID string) ([]*models.Comment, error) {
		return nil, errors.New("database is down")
	}

	cfg := testConfig()
	router := api.NewRouter(&service.Services{Comment: mockComments}, cfg, nil, zerolog.Nop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/recipes/"+uuid.New().String()+"/comments", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "failed to list comments") {
		t.Errorf("Expected generic error message, got %s", w.Body.String())
	}
}

func TestFavoritesAndAccountRemoval(t *testing.T) {
	env := setupTestRouter(t)
	r := env.seedRecipe("alice", true)
	bob := token(t, "bob", "Bob")

	w := env.do(jsonRequest("POST", "/api/favorites/"+r.ID, bob, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var fav models.FavoriteResult
	decode(t, w, &fav)
	if !fav.Favorited {
		t.Error("Expected favorited")
	}

	w = env.do(jsonRequest("GET", "/api/favorites", bob, nil))
	var listed struct {
		Count int `json:"count"`
	}
	decode(t, w, &listed)
	if listed.Count != 1 {
		t.Errorf("Expected 1 favorite, got %d", listed.Count)
	}

	env.do(jsonRequest("POST", "/api/recipes/"+r.ID+"/comments", bob, map[string]string{"text": "bye"}))

	w = env.do(jsonRequest("DELETE", "/api/users/me/data", bob, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var removed struct {
		Deleted models.DeletionSummary `json:"deleted"`
	}
	decode(t, w, &removed)
	if removed.Deleted.Favorites != 1 || removed.Deleted.Comments != 1 {
		t.Errorf("Unexpected summary: %+v", removed.Deleted)
	}

	if w := env.do(jsonRequest("DELETE", "/api/users/me/data", "", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("Anonymous removal: expected 401, got %d", w.Code)
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Stream ended: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestCommentStream(t *testing.T) {
	env := setupTestRouter(t)
	r := env.seedRecipe("alice", true)
	server := httptest.NewServer(env.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", server.URL+"/api/recipes/"+r.ID+"/comments/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Expected event stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	if first.name != api.EventSnapshot || first.data != "[]" {
		t.Fatalf("Expected empty snapshot, got %+v", first)
	}

	post := jsonRequest("POST", "/api/recipes/"+r.ID+"/comments", token(t, "bob", "Bob"), map[string]string{"text": "live"})
	if w := env.do(post); w.Code != http.StatusCreated {
		t.Fatalf("Create failed: %d", w.Code)
	}

	next := readEvent(t, reader)
	if next.name != api.EventSnapshot {
		t.Fatalf("Expected snapshot, got %+v", next)
	}
	var list []models.Comment
	if err := json.Unmarshal([]byte(next.data), &list); err != nil {
		t.Fatalf("Invalid snapshot payload %q: %v", next.data, err)
	}
	if len(list) != 1 || list[0].Text != "live" {
		t.Errorf("Expected the new comment, got %+v", list)
	}
}

func TestCommentStream_UnknownRecipe(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(httptest.NewRequest("GET", "/api/recipes/"+uuid.New().String()+"/comments/stream", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
