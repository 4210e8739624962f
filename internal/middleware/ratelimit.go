package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/crowdfund-ton/backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimit budgets requests per client IP and route in a fixed window.
// Mutating requests submit ledger transactions and have their own, smaller
// budget. A limit <= 0 disables that class.
type RateLimit struct {
	Reads  int
	Writes int
	Window time.Duration
}

func isWrite(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}

func RateLimitMiddleware(rdb *redis.Client, rl RateLimit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		class, limit := "r", rl.Reads
		if isWrite(c.Method()) {
			class, limit = "w", rl.Writes
		}
		if limit <= 0 {
			return c.Next()
		}
		key := fmt.Sprintf("rl:%s:%s:%s", class, c.Route().Path, c.IP())

		ctx := c.UserContext()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next() // fail open
		}
		if count == 1 {
			rdb.Expire(ctx, key, rl.Window)
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			if ttl, err := rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Round(time.Second)/time.Second)))
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error:     "rate limit exceeded",
				RequestID: GetRequestID(c),
			})
		}
		return c.Next()
	}
}
