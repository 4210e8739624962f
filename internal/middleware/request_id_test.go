package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"locals":  GetRequestID(c),
			"context": models.RequestIDFromContext(c.UserContext()),
		})
	})

	tests := []struct {
		name     string
		header   string
		wantEcho bool
	}{
		{"client id echoed", "req-42.a_b:c", true},
		{"missing id minted", "", false},
		{"too long replaced", strings.Repeat("a", 65), false},
		{"max length echoed", strings.Repeat("a", 64), true},
		{"unsafe characters replaced", "abc/def<script>", false},
		{"spaces replaced", "a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			got := resp.Header.Get(HeaderRequestID)
			if tt.wantEcho {
				assert.Equal(t, tt.header, got)
			} else {
				_, err := uuid.Parse(got)
				assert.NoError(t, err, got)
			}

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, got, body["locals"])
			assert.Equal(t, got, body["context"])
		})
	}
}
