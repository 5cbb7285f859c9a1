package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-ai-consult/internal/config"
	"telegram-ai-consult/internal/domain"
)

type RedisClient interface {
	Ping(ctx context.Context) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}

var _ RedisClient = (*Client)(nil)

// Client wraps go-redis and maps redis.Nil to domain.ErrNotFound and every
// other failure to domain.ErrStorage.
type Client struct {
	cli *redis.Client
}

// NewClient accepts either a redis:// URL or a bare host:port.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	var opts *redis.Options
	if strings.Contains(cfg.URL, "://") {
		o, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = o
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
	} else {
		opts = &redis.Options{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: c}, nil
}

func (c *Client) Ping(ctx context.Context) error { return mapErr(c.cli.Ping(ctx).Err()) }

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return mapErr(c.cli.Set(ctx, key, value, expiration).Err())
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.cli.Get(ctx, key).Result()
	return v, mapErr(err)
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	v, err := c.cli.Incr(ctx, key).Result()
	return v, mapErr(err)
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return mapErr(c.cli.Expire(ctx, key, expiration).Err())
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return mapErr(c.cli.Del(ctx, keys...).Err())
}

func (c *Client) Close() error { return c.cli.Close() }

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return domain.ErrNotFound
	default:
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
}
