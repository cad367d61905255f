package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/warrenlibrary/library-backend/internal/handler"
	"github.com/warrenlibrary/library-backend/internal/middleware"
	"github.com/warrenlibrary/library-backend/internal/testutil"
	"gorm.io/gorm"
)

// newTestRouter wires the production router over db with in-process
// collaborators.
func newTestRouter(t *testing.T, db *gorm.DB, limiter middleware.Limiter) (*gin.Engine, *testutil.TestServices) {
	gin.SetMode(gin.TestMode)

	services := testutil.NewTestServices(t, db)
	if limiter == nil {
		limiter = middleware.NewMemoryRateLimiter(middleware.RateLimiterConfig{MaxRequests: 1000, Window: time.Minute})
	}

	router := handler.NewRouter(handler.RouterConfig{
		AuthService:      services.Auth,
		BorrowingService: services.Borrowing,
		Broker:           services.Broker,
		AuthLimiter:      limiter,
	})
	return router, services
}

// doRequest sends body as JSON (when not nil) with an optional bearer token.
func doRequest(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		reader = bytes.NewBuffer(bodyBytes)
	}

	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "192.0.2.10:40000"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeObject(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("response is not a JSON object: %v (%s)", err, w.Body.String())
	}
	return response
}

func decodeArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var response []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("response is not a JSON array: %v (%s)", err, w.Body.String())
	}
	return response
}
