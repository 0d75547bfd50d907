package middleware

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/integrationcontext"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
)

// IntegrationRateLimit limits calls per integration using the limits stored
// on it for scope (empty means the flat limits). It must run after
// IntegrationAuth; unauthenticated calls are limited per IP with the
// configured defaults. storage may be nil for the in-process store.
func IntegrationRateLimit(cfg *config.Config, storage fiber.Storage, scope string) fiber.Handler {
	fallback := cfg.Defaults().RateLimits
	var handlers sync.Map

	return func(c *fiber.Ctx) error {
		effective := fallback.Resolve(scope)
		if i := integrationcontext.GetIntegration(c); i != nil {
			effective = i.GetRateLimit(scope)
		}
		limit, window, ok := effective.Window()
		if !ok {
			if limit, window, ok = fallback.Resolve(ratelimit.DefaultKey).Window(); !ok {
				return c.Next()
			}
		}

		cacheKey := strconv.Itoa(limit) + "/" + window.String()
		h, found := handlers.Load(cacheKey)
		if !found {
			h, _ = handlers.LoadOrStore(cacheKey, newLimiter(storage, scope, limit, window))
		}
		return h.(fiber.Handler)(c)
	}
}

func newLimiter(storage fiber.Storage, scope string, limit int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               limit,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			subject := integrationcontext.GetClientID(c)
			if subject == "" {
				subject = c.IP()
			}
			sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%s|%d/%s", c.Hostname(), subject, scope, limit, window)))
			return "integration_rate_limit:" + hex.EncodeToString(sum[:])
		},
		LimitReached: func(c *fiber.Ctx) error {
			retryAfter, _ := strconv.Atoi(c.GetRespHeader(fiber.HeaderRetryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests",
				"retry_after": retryAfter,
			})
		},
	})
}
