package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dd-copilot/internal/config"

	"github.com/gin-gonic/gin"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/kpis", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })
	router.POST("/ingest", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newTestRouter(RequestIDMiddleware())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/kpis", nil))
	generated := w.Header().Get(RequestIDHeader)
	if len(generated) != 36 {
		t.Fatalf("generated request ID = %q", generated)
	}
	if w.Body.String() != generated {
		t.Errorf("context request ID = %q, header = %q", w.Body.String(), generated)
	}

	req := httptest.NewRequest(http.MethodGet, "/kpis", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "caller-id" {
		t.Errorf("request ID = %q, want caller-id", got)
	}
}

func TestLocalRateLimiter(t *testing.T) {
	limiter := NewLocalRateLimiter(&config.Config{RateLimitReqs: 2, RateLimitWindow: 60})
	router := newTestRouter(limiter.Middleware())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/kpis", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests && w.Header().Get("X-RateLimit-Remaining") != "0" {
			t.Errorf("missing rate limit headers on rejection")
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("status codes = %v, want [200 200 429]", codes)
	}

	// limits are per endpoint
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ingest", nil))
	if w.Code != http.StatusOK {
		t.Errorf("POST /ingest status = %d, want 200", w.Code)
	}

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET /health was rate limited")
		}
	}
}

func TestLocalRateLimiterBoundsVisitors(t *testing.T) {
	limiter := NewLocalRateLimiter(&config.Config{RateLimitReqs: 5, RateLimitWindow: 60})
	limiter.maxVisitors = 2

	limiter.allow("10.0.0.1:/ingest")
	limiter.allow("10.0.0.2:/ingest")
	now := time.Now()
	limiter.visitors["10.0.0.1:/ingest"].lastSeen = now.Add(-2 * time.Second)
	limiter.visitors["10.0.0.2:/ingest"].lastSeen = now.Add(-time.Second)

	if !limiter.allow("10.0.0.3:/ingest") {
		t.Fatal("new visitor was rejected")
	}

	if len(limiter.visitors) != 2 {
		t.Fatalf("tracking %d visitors, want 2", len(limiter.visitors))
	}
	if _, ok := limiter.visitors["10.0.0.1:/ingest"]; ok {
		t.Error("least recently seen visitor was kept")
	}
	for _, key := range []string{"10.0.0.2:/ingest", "10.0.0.3:/ingest"} {
		if _, ok := limiter.visitors[key]; !ok {
			t.Errorf("visitor %s was evicted", key)
		}
	}
}

func TestRequestSizeLimit(t *testing.T) {
	router := newTestRouter(RequestSizeLimit(8))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("0123456789")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("small")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	router := newTestRouter(CORSMiddlewareWithOrigins([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodGet, "/kpis", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/kpis", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status for unknown origin = %d, want 403", w.Code)
	}
}
