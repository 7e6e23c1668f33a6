package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	e := newEcho()
	store := newVisitorStore(0.1, 2, time.Minute)
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, rateLimitWith(store))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "11", rec.Header().Get("Retry-After"))
			assert.JSONEq(t,
				`{"error":"too_many_requests","message":"too many requests, please try again later"}`,
				rec.Body.String())
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.8:5555"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVisitorStore_CleanupEvictsIdle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newVisitorStore(1, 1, time.Minute)
	store.now = func() time.Time { return now }

	store.limiter("a")
	now = now.Add(30 * time.Second)
	store.limiter("b")
	now = now.Add(45 * time.Second)
	store.cleanup()

	assert.Equal(t, 1, store.size())
}

func TestVisitorStore_EvictLoopStopsOnCancel(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newVisitorStore(1, 1, time.Minute)
	store.now = func() time.Time { return start }
	store.limiter("a")
	store.now = func() time.Time { return start.Add(2 * time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.evictLoop(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.size() == 0 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("evict loop kept running after cancel")
	}
}

func TestCORS(t *testing.T) {
	e := newEcho()
	e.Use(CORS(CORSConfig{AllowedOrigins: []string{"https://root.example"}, AllowCredentials: true}))
	e.GET("/me", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	t.Run("allowed origin preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/me", nil)
		req.Header.Set("Origin", "https://root.example")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://root.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestTrustedProxies(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer ignores header", "198.51.100.1:1000", "1.2.3.4", "198.51.100.1"},
		{"trusted peer uses forwarded client", "10.0.0.5:1000", "1.2.3.4", "1.2.3.4"},
		{"spoofed prefix skipped", "10.0.0.5:1000", "6.6.6.6, 1.2.3.4, 10.0.0.9", "1.2.3.4"},
		{"no header", "10.0.0.5:1000", "", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, extract(req))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := newEcho()
	e.Use(SecurityHeaders(true))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	e := newEcho()
	e.Use(Recovery())
	e.GET("/boom", func(c echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "an unexpected error occurred")
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	e := newEcho()
	e.Use(Metrics())
	e.POST("/reset-password/:token", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad")
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/reset-password/:token", "400"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reset-password/secret-token", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/reset-password/:token", "400"))
	assert.Equal(t, before+1, after)
}

func TestRequestLogger_CarriesAccountID(t *testing.T) {
	e := newEcho()
	e.Use(RequestLogger())

	var seen string
	e.GET("/me", func(c echo.Context) error {
		c.SetRequest(c.Request().WithContext(WithAccountID(c.Request().Context(), "acc-1")))
		seen = AccountIDFromContext(c.Request().Context())
		return errors.New("fail")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, "acc-1", seen)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTracing_PassesThrough(t *testing.T) {
	e := newEcho()
	e.Use(Tracing())
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
