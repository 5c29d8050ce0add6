package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runHealth(t *testing.T, checks ...Check) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := HealthHandler(checks...)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_NoChecks(t *testing.T) {
	code, body := runHealth(t)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected healthy 200, got %d %v", code, body)
	}
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	ok := Check{Name: "postgres", Ping: func(context.Context) error { return nil }}
	code, body := runHealth(t, ok)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	backends := body["backends"].(map[string]interface{})
	if backends["postgres"].(map[string]interface{})["status"] != "healthy" {
		t.Errorf("unexpected backend entry: %v", backends["postgres"])
	}
}

func TestHealthHandler_OneFailing(t *testing.T) {
	ok := Check{Name: "postgres", Ping: func(context.Context) error { return nil }}
	down := Check{
		Name:    "redis",
		Ping:    func(context.Context) error { return errors.New("connection refused") },
		Details: func() interface{} { return map[string]int{"total_conns": 0} },
	}
	code, body := runHealth(t, ok, down)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
	redisEntry := body["backends"].(map[string]interface{})["redis"].(map[string]interface{})
	if redisEntry["error"] != "connection refused" {
		t.Errorf("expected error detail, got %v", redisEntry)
	}
	if redisEntry["stats"] == nil {
		t.Error("expected stats for redis")
	}
}

func TestPoolStats_JSONFields(t *testing.T) {
	b, err := json.Marshal(&PoolStats{TotalConns: 10, IdleConns: 5, MaxConns: 20, AcquireDuration: "1.5s", Healthy: true})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	for _, k := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing field %s", k)
		}
	}
}
