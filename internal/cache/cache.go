package cache

import (
	"context"
	"time"
)

// Cache is a passive key/value layer. It never reads the durable store;
// fill-on-miss policy belongs to the service layer.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
