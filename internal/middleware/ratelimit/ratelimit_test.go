package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestMiddlewareRejectsAfterBurst(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, Burst: 2})
	defer rl.Stop()
	app := newApp(rl)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestMiddlewareKeysByUserID(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, Burst: 1})
	defer rl.Stop()
	app := newApp(rl)

	for _, user := range []string{"alice", "bob"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-User-ID", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, user)
	}
}

func TestEvictIdleVisitors(t *testing.T) {
	rl := New(Config{IdleTTL: time.Minute})
	defer rl.Stop()

	rl.allow("a")
	rl.allow("b")

	assert.Equal(t, 0, rl.evict(time.Now()))
	assert.Equal(t, 2, rl.evict(time.Now().Add(2*time.Minute)))
	assert.Empty(t, rl.visitors)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Config{})
	rl.Stop()
	rl.Stop()
}
