package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// returned by Get and HGet when the key or field does not exist
	ErrNotFound = errors.New("kv: key not found")

	// returned when a string command hits a hash key or the other way around
	ErrWrongType = errors.New("kv: operation against a key holding the wrong kind of value")

	// returned by increments on a value that is not an integer
	ErrNotInteger = errors.New("kv: value is not an integer")
)

// Store is the shared key-value capability the accounting packages are written against.
// Every method is a single atomic operation on the backing store; there are no
// multi-key transactions. A ttl of zero means the key does not expire.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	HSet(ctx context.Context, key string, values map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	// returns an empty map when the key does not exist
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)

	Close() error
}

// increments a counter by one
func Incr(ctx context.Context, s Store, key string) (int64, error) {
	return s.IncrBy(ctx, key, 1)
}
