package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.err
}

func newLimitedApp(l *fakeLimiter, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("userId", userID)
		}
		return c.Next()
	})
	app.Post("/upload", UserRateLimiter(l), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestUserRateLimiterAllows(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	app := newLimitedApp(limiter, "user-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/upload", nil))

	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"user-1"}, limiter.keys)
}

func TestUserRateLimiterBlocks(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	app := newLimitedApp(limiter, "user-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/upload", nil))

	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestUserRateLimiterFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	app := newLimitedApp(limiter, "user-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/upload", nil))

	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestUserRateLimiterSkipsAnonymous(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	app := newLimitedApp(limiter, "")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/upload", nil))

	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, limiter.keys)
}
