package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            rate.Limit(1.0 / 60.0),
		Burst:           burst,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestRateLimiter_BlocksAfterBurst はバーストを超えたリクエストが429になることを検証する。
func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := newTestRateLimiter(t, 2)
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/members", nil)
		req = req.WithContext(ContextWithActingUserID(req.Context(), 1000))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/members", nil)
	req = req.WithContext(ContextWithActingUserID(req.Context(), 1000))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want %q", got, "60")
	}
}

// TestRateLimiter_PerActingUser は操作者ごとに独立して制限されることを検証する。
func TestRateLimiter_PerActingUser(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	handler := rl.Middleware()(okHandler())

	for _, actor := range []int64{1, 2} {
		req := httptest.NewRequest(http.MethodPost, "/api/members", nil)
		req = req.WithContext(ContextWithActingUserID(req.Context(), actor))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("actor %d status = %d, want 200", actor, w.Code)
		}
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount() = %d, want 2", rl.LimiterCount())
	}
}

// TestRateLimiter_RequiresActingUser は操作者IDがない場合に400を返すことを検証する。
func TestRateLimiter_RequiresActingUser(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	handler := rl.Middleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/members", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// TestRateLimiter_CleanupRemovesIdleEntries は長時間アクセスのないエントリが削除されることを検証する。
func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	rl.limiterFor(1)
	rl.limiterFor(2)

	rl.cleanup(time.Now().Add(time.Hour))
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount() = %d, want 2 within ttl", rl.LimiterCount())
	}

	rl.cleanup(time.Now().Add(3 * time.Hour))
	if rl.LimiterCount() != 0 {
		t.Errorf("LimiterCount() = %d, want 0 after ttl", rl.LimiterCount())
	}
}

// TestMiddlewareChain_AuthThenRateLimit は認証とレート制限のチェーンがchi.Routerで動作することを検証する。
func TestMiddlewareChain_AuthThenRateLimit(t *testing.T) {
	rl := newTestRateLimiter(t, 1)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(NewAdminAuthMiddleware(testAdminToken))
		r.Use(rl.Middleware())
		r.Post("/api/members", okHandler().ServeHTTP)
	})

	send := func(token string) int {
		w := httptest.NewRecorder()
		req := newAuthRequest(token, "1000")
		req.Method = http.MethodPost
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("wrong"); code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", code)
	}
	if rl.LimiterCount() != 0 {
		t.Error("unauthenticated requests should not consume rate limit")
	}
	if code := send(testAdminToken); code != http.StatusOK {
		t.Errorf("first status = %d, want 200", code)
	}
	if code := send(testAdminToken); code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", code)
	}
}
