package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", nil)
	req.RemoteAddr = remoteAddr
	return req
}

// TestRateLimitMiddleware_AllowsRequestsWithinLimit はバースト内のリクエストが通ることを検証する。
func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: rate.Limit(1), Burst: 5, CleanupInterval: time.Minute})
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("192.0.2.1:1234"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

// TestRateLimitMiddleware_Returns429WhenLimitExceeded は上限超過で429とRetry-Afterが返ることを検証する。
func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: rate.Limit(0.5), Burst: 2, CleanupInterval: time.Minute})
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1:1234"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.1:5678"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want %q", got, "2")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("429レスポンスはJSONであるべき: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q", body.Code)
	}
}

// TestRateLimitMiddleware_IsolatesClients はクライアントIPごとに独立して制限されることを検証する。
func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: rate.Limit(0.1), Burst: 1, CleanupInterval: time.Minute})
	handler := rl.Middleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1:1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.2:1"))
	if w.Code != http.StatusOK {
		t.Errorf("別クライアントは制限されない: status = %d", w.Code)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

// TestRateLimiter_CleanupRemovesExpiredEntries は期限切れエントリが削除されることを検証する。
func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: rate.Limit(1), Burst: 1, CleanupInterval: time.Hour})
	rl.getOrCreateLimiter("192.0.2.1")
	rl.getOrCreateLimiter("192.0.2.2")

	rl.mu.Lock()
	rl.limiters["192.0.2.1"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	if rl.LimiterCount() != 1 {
		t.Errorf("LimiterCount = %d, want 1", rl.LimiterCount())
	}
}

// TestPerMinuteConfig は1分あたりの件数からの変換を検証する。
func TestPerMinuteConfig(t *testing.T) {
	cfg := PerMinuteConfig(30)
	if cfg.Rate != rate.Limit(0.5) {
		t.Errorf("Rate = %v, want 0.5", cfg.Rate)
	}
	if cfg.Burst != 30 {
		t.Errorf("Burst = %d, want 30", cfg.Burst)
	}
	if DefaultRateLimiterConfig() != cfg {
		t.Error("デフォルトは30 req/min")
	}
	if PerMinuteConfig(0).Burst != 1 {
		t.Error("0以下は1 req/minに切り上げる")
	}
}

// TestClientIP はRemoteAddrからポートが除かれることを検証する。
func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		if got := clientIP(requestFrom(tt.remoteAddr)); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
