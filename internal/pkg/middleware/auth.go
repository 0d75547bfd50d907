package middleware

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
)

// KeyUserID holds the acting user id on admin routes.
const KeyUserID = "user_id"

// AdminToken protects the admin API with a static bearer token. The acting
// user is taken from X-User-ID and attached to the request context as the
// event actor. An empty token disables the admin API.
func AdminToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		given := bearerToken(c)
		if token == "" || given == "" || subtle.ConstantTimeCompare([]byte(token), []byte(given)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "admin token required",
			})
		}

		userID, err := strconv.ParseUint(strings.TrimSpace(c.Get("X-User-ID")), 10, 64)
		if err != nil || userID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "bad_request",
				"message": "X-User-ID header must be a positive integer",
			})
		}

		c.Locals(KeyUserID, uint(userID))
		c.SetUserContext(events.WithActor(c.UserContext(), &events.Actor{
			Type:      models.AuditActorUser,
			ID:        strconv.FormatUint(userID, 10),
			IPAddress: c.IP(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
		}))
		return c.Next()
	}
}

// GetUserID returns the acting user id, or 0 outside admin routes.
func GetUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(KeyUserID).(uint)
	return id
}

func bearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
