package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestRateLimiter_Allow(t *testing.T) {
	config := RateLimiterConfig{
		RequestsPerSecond: 2.0,
		BurstSize:         3,
		CleanupInterval:   1 * time.Minute,
	}

	rl := NewRateLimiter(config, zap.NewNop())
	defer rl.Stop()

	clientID := "test-client-1"

	for i := 0; i < 3; i++ {
		if !rl.Allow(clientID) {
			t.Errorf("Request %d should be allowed (within burst)", i+1)
		}
	}

	if rl.Allow(clientID) {
		t.Error("Request 4 should be denied (burst exhausted)")
	}

	// 500ms = 1 token at 2/sec
	time.Sleep(550 * time.Millisecond)

	if !rl.Allow(clientID) {
		t.Error("Request should be allowed after token refill")
	}
}

func TestRateLimiter_DifferentClients(t *testing.T) {
	config := RateLimiterConfig{
		RequestsPerSecond: 1.0,
		BurstSize:         2,
		CleanupInterval:   1 * time.Minute,
	}

	rl := NewRateLimiter(config, zap.NewNop())
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		if !rl.Allow("client-1") {
			t.Errorf("Client 1 request %d should be allowed", i+1)
		}
		if !rl.Allow("client-2") {
			t.Errorf("Client 2 request %d should be allowed", i+1)
		}
	}

	if rl.Allow("client-1") {
		t.Error("Client 1 should be rate limited")
	}
	if rl.Allow("client-2") {
		t.Error("Client 2 should be rate limited")
	}
}

func TestRateLimiter_ForgetAndCleanup(t *testing.T) {
	config := RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         10,
		CleanupInterval:   50 * time.Millisecond,
	}

	rl := NewRateLimiter(config, zap.NewNop())
	defer rl.Stop()

	rl.Allow("conn-1")
	rl.Allow("conn-2")
	if rl.LimiterCount() != 2 {
		t.Fatalf("Expected 2 limiters, got %d", rl.LimiterCount())
	}

	rl.Forget("conn-1")
	if rl.LimiterCount() != 1 {
		t.Errorf("Expected 1 limiter after Forget, got %d", rl.LimiterCount())
	}

	time.Sleep(200 * time.Millisecond)
	if rl.LimiterCount() != 0 {
		t.Errorf("Expected idle limiter to be cleaned up, got %d", rl.LimiterCount())
	}
}

func TestRateLimiter_Gin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1}, zap.NewNop())
	defer rl.Stop()

	router := gin.New()
	router.Use(rl.Gin())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", second.Code)
	}
}
