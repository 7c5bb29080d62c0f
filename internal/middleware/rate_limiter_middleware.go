package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jobhive/cv-insight/internal/ratelimit"
)

// RateLimiter is the coarse per-IP limiter applied to the whole app.
func RateLimiter(max int, expiration time.Duration) fiber.Handler {
	if max == 0 {
		max = 50
	}
	if expiration == 0 {
		expiration = 1 * time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many requests",
			})
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}

// UserRateLimiter throttles by authenticated user via the injected limiter.
// Must run after the auth middleware has set userId. A limiter outage fails
// open: better an extra upload than a dead endpoint.
func UserRateLimiter(l ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("userId").(string)
		if userID == "" {
			return c.Next()
		}
		allowed, err := l.Allow(c.UserContext(), userID)
		if err != nil {
			log.Printf("rate limiter unavailable: %v", err)
			return c.Next()
		}
		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Upload limit reached, try again in a minute",
			})
		}
		return c.Next()
	}
}
