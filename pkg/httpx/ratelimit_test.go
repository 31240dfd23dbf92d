package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omnipdf/qrauth/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(requestFrom("192.168.1.1")))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := requestFrom("192.168.1.1")
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := requestFrom("192.168.1.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestUserIDKeyExtractor(t *testing.T) {
	require.Empty(t, httpx.UserIDKeyExtractor(requestFrom("192.168.1.1")), "anonymous requests have no user key")

	req := requestFrom("192.168.1.1")
	req = req.WithContext(context.WithValue(req.Context(), httpx.CtxKeyUserID, "alice"))
	require.Equal(t, "alice", httpx.UserIDKeyExtractor(req))
}

func TestCompositeKeyExtractor(t *testing.T) {
	user := func(r *http.Request) string { return r.URL.Query().Get("user") }
	extractor := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, user)

	req := httptest.NewRequest(http.MethodGet, "/?user=alice", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	require.Equal(t, "192.168.1.1:alice", extractor(req))

	// Empty parts are skipped
	require.Equal(t, "192.168.1.1", extractor(requestFrom("192.168.1.1")))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks requests over limit", func(t *testing.T) {
		limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 3, Window: time.Minute, Burst: 3,
		}, httpx.IPKeyExtractor)(okHandler)

		for i := range 3 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, requestFrom("192.168.1.1"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}

		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("192.168.1.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		limited := httpx.RateLimitByIP(httpx.RateLimitConfig{
			RequestsPerWindow: 1, Window: time.Minute, Burst: 1,
		})(okHandler)

		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("192.168.1.1"))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("192.168.1.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("192.168.1.2"))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1, Window: time.Minute, Burst: 1,
		}, func(*http.Request) string { return "" })(okHandler)

		for range 3 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, requestFrom("192.168.1.1"))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestRateLimitByUser(t *testing.T) {
	limited := httpx.RateLimitByUser(httpx.RateLimitConfig{
		RequestsPerWindow: 1, Window: time.Minute, Burst: 1,
	})(okHandler)

	asUser := func(uid string) *http.Request {
		req := requestFrom("10.0.0.1")
		return req.WithContext(context.WithValue(req.Context(), httpx.CtxKeyUserID, uid))
	}

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, asUser("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, asUser("alice"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Same IP, different user has its own bucket
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, asUser("bob"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Anonymous callers fall back to their IP bucket
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, requestFrom("10.0.0.1"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, requestFrom("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLimiter_Allow(t *testing.T) {
	l := httpx.NewLimiter(httpx.RateLimitConfig{RequestsPerWindow: 60, Window: time.Minute, Burst: 1})

	ok, delay := l.Allow("k")
	require.True(t, ok)
	require.Zero(t, delay)

	ok, delay = l.Allow("k")
	require.False(t, ok)
	require.Greater(t, delay, time.Duration(0))
	require.LessOrEqual(t, delay, time.Second)
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	t.Setenv("RATELIMIT_TEST_REQUESTS", "50")
	t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "10")
	t.Setenv("RATELIMIT_TEST_BURST", "-1")

	cfg := httpx.ParseRateLimitFromEnv("TEST", def)
	require.Equal(t, 50, cfg.RequestsPerWindow)
	require.Equal(t, 10*time.Second, cfg.Window)
	require.Equal(t, 5, cfg.Burst, "invalid values keep the default")

	require.Equal(t, def, httpx.ParseRateLimitFromEnv("MISSING", def))
}

func TestRateLimitProfiles(t *testing.T) {
	require.Less(t, httpx.StrictLimit.RequestsPerWindow, httpx.ModerateLimit.RequestsPerWindow)
	require.Less(t, httpx.ModerateLimit.RequestsPerWindow, httpx.LenientLimit.RequestsPerWindow)
	require.Less(t, httpx.LenientLimit.RequestsPerWindow, httpx.PublicLimit.RequestsPerWindow)

	// Polling once a second for a full session lifetime must fit the lenient profile
	require.GreaterOrEqual(t, httpx.LenientLimit.RequestsPerWindow, 60)
}
