package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/warrenlibrary/library-backend/internal/errors"
	"github.com/warrenlibrary/library-backend/internal/models"
)

type stubAuthorizer struct {
	tokens map[string]models.Actor
}

func (s stubAuthorizer) Authorize(token string) (models.Actor, error) {
	if token == "" {
		return models.Actor{}, apperrors.Unauthorized("missing token")
	}
	actor, ok := s.tokens[token]
	if !ok {
		return models.Actor{}, apperrors.Unauthorized("invalid or expired token")
	}
	return actor, nil
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	auth := stubAuthorizer{tokens: map[string]models.Actor{
		"student-token": {UserID: 1, Role: models.RoleStudent},
		"admin-token":   {UserID: 2, Role: models.RoleAdmin},
	}}

	router := gin.New()
	router.Use(AuthMiddleware(auth))
	router.GET("/me", func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "role": actor.Role})
	})
	router.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func serve(router *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestAuthMiddleware(t *testing.T) {
	router := newAuthRouter()

	tests := []struct {
		name          string
		authorization string
		wantStatus    int
		wantError     string
	}{
		{"no header", "", http.StatusUnauthorized, "missing token"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "missing token"},
		{"bearer without token", "Bearer ", http.StatusUnauthorized, "missing token"},
		{"unknown token", "Bearer forged", http.StatusUnauthorized, "invalid or expired token"},
		{"valid token", "Bearer student-token", http.StatusOK, ""},
		{"scheme is case-insensitive", "bearer student-token", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, "/me", tt.authorization)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorBody(t, w))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	router := newAuthRouter()

	w := serve(router, "/admin", "Bearer student-token")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "admin access required", errorBody(t, w))

	w = serve(router, "/admin", "Bearer admin-token")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDAndRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID(), RequestLogger(), Recovery(), SecurityHeadersMiddleware())
	router.GET("/panic", func(c *gin.Context) {
		panic("database password is hunter2")
	})

	w := serve(router, "/panic", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", errorBody(t, w))
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(RequestIDHeader, "caller-supplied-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "caller-supplied-id", w.Header().Get(RequestIDHeader))
}

func TestHSTSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, production := range []bool{true, false} {
		router := gin.New()
		router.Use(HSTSMiddleware(production))
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := serve(router, "/", "")
		if production {
			assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
		} else {
			assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
		}
	}
}
