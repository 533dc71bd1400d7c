package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	UserIDHeader = "X-User-ID"
	userIDKey    = "user_id"
)

// UserIdentity reads the caller id set by the upstream auth gateway. A
// missing header means an anonymous caller.
func UserIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(UserIDHeader)
		if raw == "" {
			return c.Next()
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "Invalid "+UserIDHeader+" header")
		}

		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

func userIDFrom(c *fiber.Ctx) *uuid.UUID {
	if userID, ok := c.Locals(userIDKey).(uuid.UUID); ok {
		return &userID
	}
	return nil
}
