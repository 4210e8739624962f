package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWrite(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{fiber.MethodGet, false},
		{fiber.MethodHead, false},
		{fiber.MethodPost, true},
		{fiber.MethodPut, true},
		{fiber.MethodDelete, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isWrite(tt.method), tt.method)
	}
}

func TestRateLimitDisabledClassSkipsRedis(t *testing.T) {
	app := fiber.New()
	// A nil client would panic if the disabled class touched Redis.
	app.Use(RateLimitMiddleware(nil, RateLimit{Window: time.Minute}))
	app.Get("/campaigns", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Post("/campaigns", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })

	resp, err := app.Test(httptest.NewRequest("GET", "/campaigns", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/campaigns", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}
