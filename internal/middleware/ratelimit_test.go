package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/mangatalk/internal/model"
)

func newTestRateLimiter(burst int) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // テスト中の補充を実質無効化
		GeneralBurst:    burst,
		CleanupInterval: time.Hour,
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(3)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/comments", nil)
		req.RemoteAddr = "203.0.113.10:12345"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestGeneralMiddleware_ExceedsBurst_Returns429(t *testing.T) {
	rl := newTestRateLimiter(2)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/comments", nil)
		req.RemoteAddr = "203.0.113.10:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	send()
	send()
	rec := send()

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header is missing")
	}
}

// クライアントごとに独立したリミッターを持つ。
func TestGeneralMiddleware_PerClientIsolation(t *testing.T) {
	rl := newTestRateLimiter(1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/comments", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("203.0.113.10:1000"); got != http.StatusOK {
		t.Fatalf("client A first request: status = %d, want 200", got)
	}
	if got := send("203.0.113.10:2000"); got != http.StatusTooManyRequests {
		t.Fatalf("client A second request: status = %d, want 429", got)
	}

	// 別IPは影響を受けない
	if got := send("203.0.113.99:1000"); got != http.StatusOK {
		t.Errorf("client B first request: status = %d, want 429", got)
	}
}

// 認証済みリクエストはIPではなくtelegram_idでキーイングされる。
func TestGeneralMiddleware_AuthenticatedKeyedByTelegramID(t *testing.T) {
	rl := newTestRateLimiter(1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	identity := &model.VerifiedIdentity{TelegramID: 42}

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/comments", nil)
		req.RemoteAddr = addr
		req = req.WithContext(ContextWithIdentity(req.Context(), identity))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("203.0.113.10:1000"); got != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", got)
	}
	// IPが変わっても同一ユーザーとして制限される
	if got := send("198.51.100.7:2000"); got != http.StatusTooManyRequests {
		t.Errorf("second request from other IP: status = %d, want 429", got)
	}

	if got := rl.LimiterCount(); got != 1 {
		t.Errorf("LimiterCount() = %d, want 1", got)
	}
}

func TestClientKey_Formats(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.10:12345"

	if got := clientKey(req); got != "ip:203.0.113.10" {
		t.Errorf("clientKey() = %q, want %q", got, "ip:203.0.113.10")
	}

	identity := &model.VerifiedIdentity{TelegramID: 123456789}
	req = req.WithContext(ContextWithIdentity(req.Context(), identity))

	if got := clientKey(req); got != "tg:123456789" {
		t.Errorf("clientKey() = %q, want %q", got, "tg:123456789")
	}
}
