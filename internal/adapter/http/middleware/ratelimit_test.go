package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"settlement-ledger/internal/adapter/http/middleware"
	redisStore "settlement-ledger/internal/adapter/storage/redis"
	"settlement-ledger/internal/core/ports/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func setupRateLimitRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisStore.NewRateLimitStore(client)
	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}

	r := gin.New()
	r.GET("/test", middleware.RateLimiter(store, "test", rule, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func get(r *gin.Engine, accessKey string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/test", nil)
	if accessKey != "" {
		req.Header.Set(middleware.HeaderAccessKey, accessKey)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	router := setupRateLimitRouter(t)

	for i := 0; i < 3; i++ {
		w := get(router, "")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	router := setupRateLimitRouter(t)

	for i := 0; i < 3; i++ {
		get(router, "")
	}

	w := get(router, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_001")
}

func TestRateLimiter_KeysByAccessKey(t *testing.T) {
	router := setupRateLimitRouter(t)

	for i := 0; i < 3; i++ {
		get(router, "ak_one")
	}
	assert.Equal(t, http.StatusTooManyRequests, get(router, "ak_one").Code)
	assert.Equal(t, http.StatusOK, get(router, "ak_two").Code)
}

func TestRateLimiter_DegradedModeOnStoreError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRateLimitStore(ctrl)
	store.EXPECT().Allow(gomock.Any(), gomock.Any(), int64(3), time.Minute).Return(nil, errors.New("redis down"))

	r := gin.New()
	r.GET("/test", middleware.RateLimiter(store, "test", middleware.RateLimitRule{Limit: 3, Window: time.Minute}, zerolog.Nop()),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "").Code)
}

func TestDefaultRateLimitRules(t *testing.T) {
	rules := middleware.DefaultRateLimitRules(middleware.RateLimitRule{Limit: 42, Window: time.Second})

	assert.Equal(t, int64(42), rules["default"].Limit)
	assert.Equal(t, int64(100), rules["payments"].Limit)
	assert.Equal(t, time.Hour, rules["accounts_register"].Window)
}
