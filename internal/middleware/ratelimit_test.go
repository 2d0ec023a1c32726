package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterHandler(t *testing.T) {
	tests := []struct {
		name  string
		burst int
		ips   []string // one request each, in order
		want  []int
	}{
		{"within burst", 3, []string{"10.0.0.1", "10.0.0.1", "10.0.0.1"}, []int{200, 200, 200}},
		{"over burst", 2, []string{"10.0.0.1", "10.0.0.1", "10.0.0.1"}, []int{200, 200, 429}},
		{"buckets are per IP", 1, []string{"10.0.0.1", "10.0.0.1", "10.0.0.2"}, []int{200, 429, 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			rl := NewRateLimiter(1, tt.burst)
			rl.now = func() time.Time { return now }
			h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			for i, ip := range tt.ips {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", http.NoBody)
				req.RemoteAddr = ip + ":40000"
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)

				if rec.Code != tt.want[i] {
					t.Fatalf("request %d from %s: expected %d, got %d", i, ip, tt.want[i], rec.Code)
				}
				if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "1" {
					t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
				}
			}
		})
	}
}

func TestRateLimiterRemainingHeader(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, 10)
	rl.now = func() time.Time { return now }
	h := rl.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.168.1.1:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("expected 9 remaining, got %q", got)
	}
}

func TestRateLimiterCleanupRemovesIdleClients(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, 2)
	rl.now = func() time.Time { return now }

	rl.allow("10.0.0.1")
	now = now.Add(time.Minute)
	rl.allow("10.0.0.2")

	rl.cleanup(30 * time.Second)
	if rl.Len() != 1 {
		t.Fatalf("expected 1 tracked client, got %d", rl.Len())
	}
	if _, ok := rl.clients["10.0.0.2"]; !ok {
		t.Error("expected recent client to survive cleanup")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	if _, _, ok := rl.allow("10.0.0.1"); !ok {
		t.Fatal("expected first request to pass")
	}
	if _, wait, ok := rl.allow("10.0.0.1"); ok || wait <= 0 {
		t.Fatalf("expected rejection with positive wait, got ok=%v wait=%v", ok, wait)
	}
	now = now.Add(time.Second)
	if _, _, ok := rl.allow("10.0.0.1"); !ok {
		t.Error("expected request to pass after refill")
	}
}
