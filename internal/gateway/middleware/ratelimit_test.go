package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mindrian/internal/gateway/handlers"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, config RateLimiterConfig) (*RateLimiter, *fakeClock) {
	t.Helper()
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             5,
		Enabled:           true,
		CleanupInterval:   time.Minute,
	})

	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		allowed, remaining, _ := rl.Allow(ip)
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
		if want := 4 - i; remaining != want {
			t.Errorf("Request %d: expected remaining %d, got %d", i+1, want, remaining)
		}
	}

	allowed, remaining, reset := rl.Allow(ip)
	if allowed {
		t.Error("6th request should be denied")
	}
	if remaining != 0 {
		t.Errorf("Expected remaining 0, got %d", remaining)
	}
	if got := reset.Sub(rl.now()); got != 5*time.Second {
		t.Errorf("reset in %v, want 5s", got)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{RequestsPerMinute: 60, Burst: 5})

	for i := 0; i < 100; i++ {
		if allowed, _, _ := rl.Allow("192.168.1.1"); !allowed {
			t.Fatalf("Request %d should be allowed when disabled", i+1)
		}
	}
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimiterConfig{
		RequestsPerMinute: 600,
		Burst:             2,
		Enabled:           true,
		CleanupInterval:   time.Minute,
	})

	ip := "192.168.1.1"
	rl.Allow(ip)
	rl.Allow(ip)
	if allowed, _, _ := rl.Allow(ip); allowed {
		t.Fatal("Request should be denied after burst exhausted")
	}

	clock.advance(150 * time.Millisecond)

	if allowed, _, _ := rl.Allow(ip); !allowed {
		t.Error("Request should be allowed after refill")
	}
}

func TestRateLimiter_DifferentClients(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{RequestsPerMinute: 60, Burst: 1, Enabled: true})

	if allowed, _, _ := rl.Allow("10.0.0.1"); !allowed {
		t.Error("first client should be allowed")
	}
	if allowed, _, _ := rl.Allow("10.0.0.1"); allowed {
		t.Error("first client should be limited")
	}
	if allowed, _, _ := rl.Allow("10.0.0.2"); !allowed {
		t.Error("second client has its own bucket")
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimiterConfig{RequestsPerMinute: 60, Burst: 1, Enabled: true})

	rl.Allow("10.0.0.1")
	clock.advance(time.Hour)
	rl.Allow("10.0.0.2")

	if n := rl.evict(clock.t.Add(-time.Minute)); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
	if allowed, _, _ := rl.Allow("10.0.0.1"); !allowed {
		t.Error("evicted client starts with a full bucket")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{RequestsPerMinute: 60, Burst: 2, Enabled: true})

	handler := rl.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("Request %d: status = %d, want 200", i+1, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "60" {
			t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
	}
	var resp handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != handlers.ErrCodeRateLimited {
		t.Errorf("code = %s", resp.Error.Code)
	}
}
