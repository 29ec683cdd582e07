package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// QuoteCache implements domain.QuoteCache using plain Redis string keys with
// a short TTL. One tracking pass over many positions on the same symbol then
// costs a single provider call, and the TTL guarantees the next pass sees a
// fresh quote.
type QuoteCache struct {
	rdb *redis.Client
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(key string) string {
	return "quote:" + key
}

// Get returns the memoized price for key, with found=false on a miss.
func (qc *QuoteCache) Get(ctx context.Context, key string) (float64, bool, error) {
	val, err := qc.rdb.Get(ctx, quoteKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse quote %s: %w", key, err)
	}
	return price, true, nil
}

// Set memoizes a price under key for ttl.
func (qc *QuoteCache) Set(ctx context.Context, key string, price float64, ttl time.Duration) error {
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := qc.rdb.Set(ctx, quoteKey(key), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}
