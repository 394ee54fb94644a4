// Package redis wraps go-redis client construction.
package redis

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// DB is a wrapper for go-redis
type DB struct {
	*redis.Client
}

// NewDB connects to redis and verifies the connection with a PING.
func NewDB(ctx context.Context, opt *redis.Options) (*DB, error) {
	if opt == nil || opt.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opt.Addr)
	}

	return &DB{Client: rdb}, nil
}
