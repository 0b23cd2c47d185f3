package lib

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// VerifyThrottle counts failed pass verifications per scanning user in a fixed window.
type VerifyThrottle struct {
	rd     *redis.Client
	max    int64
	window time.Duration
}

func NewVerifyThrottle(rd *redis.Client, max int64, window time.Duration) *VerifyThrottle {
	return &VerifyThrottle{rd: rd, max: max, window: window}
}

func throttleKey(userID string) string {
	return fmt.Sprintf("verify:%s:failures", userID)
}

// Allow reports whether userID may attempt another verification. Redis errors fail open.
func (t *VerifyThrottle) Allow(ctx context.Context, userID string) bool {
	if t == nil || t.rd == nil || t.max <= 0 {
		return true
	}
	n, err := t.rd.Get(ctx, throttleKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return true
	}
	if err != nil {
		log.Printf("[throttle] Error reading failures for %s: %s\n", userID, err.Error())
		return true
	}
	return n < t.max
}

func (t *VerifyThrottle) RecordFailure(ctx context.Context, userID string) {
	if t == nil || t.rd == nil {
		return
	}
	key := throttleKey(userID)
	n, err := t.rd.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[throttle] Error counting failure for %s: %s\n", userID, err.Error())
		return
	}
	if n == 1 {
		if err := t.rd.Expire(ctx, key, t.window).Err(); err != nil {
			log.Printf("[throttle] Error setting window for %s: %s\n", userID, err.Error())
		}
	}
}
