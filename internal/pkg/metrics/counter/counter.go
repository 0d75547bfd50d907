// Package counter keeps per-integration gate verdict counts in Redis.
package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/IntegrationGate/internal/pkg/cache"
)

const (
	verdictKeyPrefix = "gate:verdicts:"
	// unresolvedField collects verdicts for calls that never resolved an
	// integration, such as unknown client ids.
	unresolvedField = "unresolved"
)

func verdictKey(integrationID uint) string {
	if integrationID == 0 {
		return verdictKeyPrefix + unresolvedField
	}
	return verdictKeyPrefix + strconv.FormatUint(uint64(integrationID), 10)
}

// Counter increments and reads verdict hashes.
type Counter struct {
	rdb redis.Cmdable
}

func New(rdb redis.Cmdable) *Counter {
	return &Counter{rdb: rdb}
}

// Default uses the shared cache client.
func Default() *Counter {
	return New(cache.GetClient())
}

// AddVerdict increments the label ("allow" or a reason code) of an
// integration. integrationID 0 records calls without a resolved integration.
func (c *Counter) AddVerdict(ctx context.Context, integrationID uint, label string) error {
	return c.rdb.HIncrBy(ctx, verdictKey(integrationID), label, 1).Err()
}

// Verdicts returns the counts per label.
func (c *Counter) Verdicts(ctx context.Context, integrationID uint) (map[string]int64, error) {
	raw, err := c.rdb.HGetAll(ctx, verdictKey(integrationID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for label, v := range raw {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[label] = n
	}
	return out, nil
}

// Reset drops the counts of an integration, e.g. after it was deleted.
func (c *Counter) Reset(ctx context.Context, integrationID uint) error {
	return c.rdb.Del(ctx, verdictKey(integrationID)).Err()
}
