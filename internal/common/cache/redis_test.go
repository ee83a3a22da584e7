package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCacheGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Fatalf("get = %q, want v", got)
	}
	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after del = %v, want ErrNotFound", err)
	}
}

func TestRedisCacheSetNX(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first setnx = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = c.SetNX(ctx, "lock", "b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second setnx = (%v, %v), want (false, nil)", ok, err)
	}
}

type cachedThing struct {
	Name string `json:"name"`
}

func thingCodec() (func(*cachedThing) string, func(string) (*cachedThing, error)) {
	marshal := func(v *cachedThing) string {
		data, _ := json.Marshal(v)
		return string(data)
	}
	unmarshal := func(data string) (*cachedThing, error) {
		var v cachedThing
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
	return marshal, unmarshal
}

func TestGetWithCachedFetchesOnceAndCaches(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	marshal, unmarshal := thingCodec()

	fetches := 0
	fetch := func(ctx context.Context) (*cachedThing, error) {
		fetches++
		return &cachedThing{Name: "alpha"}, nil
	}
	isEmpty := func(v *cachedThing) bool { return v == nil }

	for i := 0; i < 3; i++ {
		got, err := GetWithCached(ctx, c, "thing:1", time.Minute, time.Minute, isEmpty, marshal, unmarshal, fetch)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if got == nil || got.Name != "alpha" {
			t.Fatalf("round %d: got %+v", i, got)
		}
	}
	if fetches != 1 {
		t.Fatalf("fetched %d times, want 1", fetches)
	}
}

func TestGetWithCachedCachesAbsence(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	marshal, unmarshal := thingCodec()

	fetches := 0
	fetch := func(ctx context.Context) (*cachedThing, error) {
		fetches++
		return nil, nil
	}
	isEmpty := func(v *cachedThing) bool { return v == nil }

	for i := 0; i < 3; i++ {
		got, err := GetWithCached(ctx, c, "thing:2", time.Minute, time.Minute, isEmpty, marshal, unmarshal, fetch)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if got != nil {
			t.Fatalf("round %d: got %+v, want nil", i, got)
		}
	}
	if fetches != 1 {
		t.Fatalf("fetched %d times, want 1 (absence should be cached)", fetches)
	}
}

func TestJitterTTLStaysInBounds(t *testing.T) {
	base := time.Minute
	for i := 0; i < 100; i++ {
		got := JitterTTL(base)
		if got < base || got > base+base/10 {
			t.Fatalf("jittered ttl %v out of [%v, %v]", got, base, base+base/10)
		}
	}
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey("battle", "room", "42"); got != "battle:room:42" {
		t.Fatalf("BuildKey = %q", got)
	}
}
