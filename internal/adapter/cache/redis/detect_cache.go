// Package redis stores detection results in Redis.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/verihuman/verihuman-api/internal/domain"
)

const keyPrefix = "detect:v1:"

// DetectCache implements domain.DetectionCache.
type DetectCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewDetectCache returns nil when rdb is nil.
func NewDetectCache(rdb *goredis.Client, ttl time.Duration) *DetectCache {
	if rdb == nil {
		return nil
	}
	return &DetectCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key from the trimmed document.
func Key(document string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(document)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns ok=false on a miss.
func (c *DetectCache) Get(ctx context.Context, document string) (domain.DetectionResult, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(document)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.DetectionResult{}, false, nil
	}
	if err != nil {
		return domain.DetectionResult{}, false, fmt.Errorf("op=detect_cache.get: %w", err)
	}
	var res domain.DetectionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.DetectionResult{}, false, fmt.Errorf("op=detect_cache.decode: %w", err)
	}
	return res, true, nil
}

// Set stores res under the document key for the configured TTL.
func (c *DetectCache) Set(ctx context.Context, document string, res domain.DetectionResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("op=detect_cache.encode: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(document), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("op=detect_cache.set: %w", err)
	}
	return nil
}
