// Package store provides the thin contract over Redis primitives the
// scheduler needs, and a go-redis/v9-backed implementation of it.
package store

import (
	"context"
	"time"
)

// KV is a field/value pair returned by BRPop.
type KV struct {
	Key   string
	Value string
}

// Store is the minimum contract the scheduler requires. Every operation
// maps 1:1 to a Redis command; an implementation may batch via pipelining
// but must preserve the ordering contracts the scheduler depends on
// (SADD-then-LPUSH, HSETNX-then-ZADD).
type Store interface {
	SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error)
	SetEx(ctx context.Context, key, val string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)

	HSet(ctx context.Context, key string, fields map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HKeys(ctx context.Context, key string) ([]string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SRandMember(ctx context.Context, key string) (string, bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	LPush(ctx context.Context, key string, values ...string) (int64, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	BRPop(ctx context.Context, timeout time.Duration, key string) (*KV, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error

	Close() error
}
