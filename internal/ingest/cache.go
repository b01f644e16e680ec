package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Blickwinkle262/DutchRentScope/internal/model"
)

// Cache is a redis fast path over the snapshot store's uniqueness contract:
// a fingerprint remembered here was durably recorded within the TTL, so the
// conflict-tolerant insert can be skipped entirely. Correctness never
// depends on it — a miss (or redis being down) just falls through to the
// idempotent insert. A nil *Cache is valid and always misses.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache returns a fingerprint cache with the given entry TTL.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func cacheKey(listingID int64, ot model.OfferingType, fp string) string {
	return fmt.Sprintf("fp:%s:%d:%s", ot, listingID, fp)
}

// Seen reports whether this exact (listing, fingerprint) pair was recorded
// within the TTL. Redis errors degrade to a miss.
func (c *Cache) Seen(ctx context.Context, listingID int64, ot model.OfferingType, fp string) bool {
	if c == nil {
		return false
	}
	n, err := c.rdb.Exists(ctx, cacheKey(listingID, ot, fp)).Result()
	if err != nil {
		slog.Warn("fingerprint cache lookup failed", "err", err)
		return false
	}
	return n > 0
}

// Remember marks the pair as recorded. Called only after a successful
// RecordObservation, so a cache hit always corresponds to a durable row.
func (c *Cache) Remember(ctx context.Context, listingID int64, ot model.OfferingType, fp string) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(listingID, ot, fp), 1, c.ttl).Err(); err != nil {
		slog.Warn("fingerprint cache store failed", "err", err)
	}
}
