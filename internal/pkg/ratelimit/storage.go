package ratelimit

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/IntegrationGate/internal/pkg/cache"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/env"
)

// limiterDatabase keeps limiter counters apart from the cache (DB 0).
const limiterDatabase = 2

// NewStorage returns the counter storage shared by every gate instance.
// With RATE_LIMIT_STORAGE=memory it returns nil and fiber's limiter falls
// back to its per-process memory store.
func NewStorage() fiber.Storage {
	if env.GetEnv("RATE_LIMIT_STORAGE", "redis") == "memory" {
		return nil
	}

	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
