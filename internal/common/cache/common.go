package cache

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

// NullCacheValue marks the cached absence of data so repeated misses do not
// hammer the backing store.
const NullCacheValue = "$NULL$"

// GetWithCached implements the cache-aside pattern with null value caching.
// On a miss it calls fn, stores the result under key (empty results get
// emptyTTL) and returns it. Cache failures fall through to fn.
func GetWithCached[T any](
	ctx context.Context,
	cache Cache,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, nil
		}
		if result, err := unmarshal(cached); err == nil {
			return result, nil
		}
	}

	data, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if isEmpty(data) {
		_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
		return zero, nil
	}

	_ = cache.Set(ctx, key, marshal(data), ttl)
	return data, nil
}

// BuildKey joins key parts with the ":" separator.
func BuildKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// JitterTTL adds up to 10% random jitter to a TTL so that keys written
// together do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	max := int64(ttl / 10)
	if max <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return ttl
	}
	return ttl + time.Duration(n.Int64())
}
