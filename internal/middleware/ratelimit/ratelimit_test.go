package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_PerUserBuckets(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := New(Config{MaxRequestsPerMinute: 2, Now: clk.Now})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	call := func(user string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-User-ID", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, call("alice"))
	assert.Equal(t, fiber.StatusOK, call("alice"))
	assert.Equal(t, fiber.StatusTooManyRequests, call("alice"))
	assert.Equal(t, fiber.StatusOK, call("bob"))

	clk.Advance(30 * time.Second)
	assert.Equal(t, fiber.StatusOK, call("alice"))
	assert.Equal(t, fiber.StatusTooManyRequests, call("alice"))
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := New(Config{MaxRequestsPerMinute: 10, CleanupInterval: time.Minute, Now: clk.Now})
	defer rl.Stop()

	assert.True(t, rl.allow("a"))
	clk.Advance(3 * time.Minute)
	rl.evictIdle()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Empty(t, rl.buckets)
}
