package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ceres/prenatal/internal/platform/auth"
	"github.com/labstack/echo/v4"
)

func rateLimitedHandler(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(NewKeyedRateLimiter(cfg))(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func withUser(req *http.Request, id string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, id))
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})

	for i := 0; i < 2; i++ {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		if err := handler(c); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	rec := httptest.NewRecorder()
	err := handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}

	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil {
		t.Fatalf("Retry-After is not an integer: %q", rec.Header().Get("Retry-After"))
	}
	if retry < 1 {
		t.Errorf("expected Retry-After >= 1, got %d", retry)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerPatientIsolation(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})

	call := func(user string) error {
		req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), user)
		return handler(e.NewContext(req, httptest.NewRecorder()))
	}

	if err := call("patient-a"); err != nil {
		t.Fatalf("patient-a first request: %v", err)
	}
	if err := call("patient-a"); err == nil {
		t.Fatal("patient-a second request: expected rate limit error")
	}
	if err := call("patient-b"); err != nil {
		t.Fatalf("patient-b first request: %v", err)
	}
}

func TestRateLimitKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	if got := rateLimitKey(e.NewContext(req, httptest.NewRecorder())); got != "ip:203.0.113.7" {
		t.Errorf("anonymous key = %q", got)
	}
	if got := rateLimitKey(e.NewContext(withUser(req, "p1"), httptest.NewRecorder())); got != "user:p1" {
		t.Errorf("patient key = %q", got)
	}
}

func TestKeyedRateLimiter_Sweep(t *testing.T) {
	l := NewKeyedRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Limiter("old")
	now = now.Add(2 * time.Minute)
	l.Limiter("fresh")

	if dropped := l.Sweep(); dropped != 1 {
		t.Errorf("expected 1 dropped limiter, got %d", dropped)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 remaining limiter, got %d", l.Len())
	}
}

func TestKeyedRateLimiter_SameKeySameLimiter(t *testing.T) {
	l := NewKeyedRateLimiter(DefaultRateLimitConfig())
	if l.Limiter("k") != l.Limiter("k") {
		t.Error("expected the same limiter for the same key")
	}
	if l.Limiter("k") == l.Limiter("other") {
		t.Error("expected distinct limiters for distinct keys")
	}
}

func TestNewKeyedRateLimiter_MinimumBurst(t *testing.T) {
	l := NewKeyedRateLimiter(RateLimitConfig{RequestsPerSecond: 1})
	if !l.Limiter("k").Allow() {
		t.Error("expected the first request to pass with a zero burst config")
	}
}
