package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             5,
		Enabled:           true,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		allowed, remaining, _ := rl.Allow(ip)
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if remaining != 4-i {
			t.Errorf("request %d: remaining = %d, want %d", i+1, remaining, 4-i)
		}
	}

	// Burst exhausted
	allowed, remaining, _ := rl.Allow(ip)
	if allowed {
		t.Error("6th request should be denied")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             5,
		Enabled:           false,
	})
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		if allowed, _, _ := rl.Allow("192.168.1.1"); !allowed {
			t.Errorf("request %d should be allowed when disabled", i+1)
		}
	}
}

func TestRateLimiter_PerClientIsolation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             1,
		Enabled:           true,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	if allowed, _, _ := rl.Allow("10.0.0.1"); !allowed {
		t.Error("first client should be allowed")
	}
	if allowed, _, _ := rl.Allow("10.0.0.1"); allowed {
		t.Error("first client should be exhausted")
	}
	if allowed, _, _ := rl.Allow("10.0.0.2"); !allowed {
		t.Error("second client must not share the first client's bucket")
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             1,
		Enabled:           true,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	handler := rl.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("first request: status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", w.Header().Get("X-RateLimit-Limit"))
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header on limited response")
	}
}
