package middleware

import (
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
)

const (
	CtxRequestID    = "request_id"
	HeaderRequestID = "X-Request-ID"

	maxRequestIDLen = 64
)

// RequestIDMiddleware echoes a well-formed client X-Request-ID or mints a
// new one. The id is kept in Locals and in the user context, where audit
// entries pick it up.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(HeaderRequestID)
		if validRequestID(reqID) {
			reqID = utils.CopyString(reqID)
		} else {
			reqID = uuid.NewString()
		}
		c.Locals(CtxRequestID, reqID)
		c.SetUserContext(models.WithRequestID(c.UserContext(), reqID))
		c.Set(HeaderRequestID, reqID)
		return c.Next()
	}
}

// validRequestID accepts short ids made of URL-safe characters so client
// input can go into logs and audit metadata as is.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

func GetRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxRequestID).(string)
	return id
}
