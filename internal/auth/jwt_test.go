package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateToken("user-123", "Kim", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	identity, err := ParseToken(tok, secret)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if identity.UserID != "user-123" {
		t.Errorf("Expected user-123, got %q", identity.UserID)
	}
	if identity.DisplayName != "Kim" {
		t.Errorf("Expected Kim, got %q", identity.DisplayName)
	}
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u1", "", []byte("secret"), -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := ParseToken(tok, []byte("secret")); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2", "", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := ParseToken(tok, []byte("wrong-secret")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_MissingSubject(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("", "anon", []byte("k"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if _, err := ParseToken(tok, []byte("k")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := ParseToken("not.a.jwt", []byte("k")); err == nil {
		t.Fatal("Expected error for malformed token")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "mw-secret"
	mw := NewMiddleware(secret, zerolog.Nop())

	router := gin.New()
	router.GET("/optional", mw.Optional(), func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": identity.UserID, "authenticated": ok})
	})
	router.GET("/required", mw.Required(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	valid, err := GenerateToken("u1", "Kim", []byte(secret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
	}{
		{"optional anonymous", "/optional", "", http.StatusOK},
		{"optional with token", "/optional", "Bearer " + valid, http.StatusOK},
		{"optional with bad token", "/optional", "Bearer nope", http.StatusUnauthorized},
		{"required anonymous", "/required", "", http.StatusUnauthorized},
		{"required wrong scheme", "/required", "Basic abc", http.StatusUnauthorized},
		{"required with token", "/required", "Bearer " + valid, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}
