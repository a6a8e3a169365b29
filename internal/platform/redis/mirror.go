package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nexus/pkg/platform/mirror"
	"nexus/pkg/platform/sentinel"
)

// Mirror implements mirror.Store on a redis client. Missing keys map to
// sentinel.ErrNotFound; every other failure wraps sentinel.ErrUnavailable.
type Mirror struct {
	client redis.Cmdable
	keyTTL time.Duration
}

var _ mirror.Store = (*Mirror)(nil)

type MirrorOption func(*Mirror)

// WithKeyTTL expires plain keys written by Set. Hashes and lists never expire.
func WithKeyTTL(ttl time.Duration) MirrorOption {
	return func(m *Mirror) {
		m.keyTTL = ttl
	}
}

func NewMirror(client redis.Cmdable, opts ...MirrorOption) *Mirror {
	m := &Mirror{client: client}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mirror) Get(ctx context.Context, key string) (string, error) {
	v, err := m.client.Get(ctx, key).Result()
	return readResult(v, err, "get "+key)
}

func (m *Mirror) Set(ctx context.Context, key, value string) error {
	return writeResult(m.client.Set(ctx, key, value, m.keyTTL).Err(), "set "+key)
}

func (m *Mirror) HashGet(ctx context.Context, hash, field string) (string, error) {
	v, err := m.client.HGet(ctx, hash, field).Result()
	return readResult(v, err, "hget "+hash)
}

func (m *Mirror) HashSet(ctx context.Context, hash, field, value string) error {
	return writeResult(m.client.HSet(ctx, hash, field, value).Err(), "hset "+hash)
}

func (m *Mirror) ListAppend(ctx context.Context, key, value string) error {
	return writeResult(m.client.RPush(ctx, key, value).Err(), "rpush "+key)
}

func readResult(v string, err error, op string) (string, error) {
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return v, nil
}

func writeResult(err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return nil
}
