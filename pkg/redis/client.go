package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfianlosari/arinventory/pkg/config"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace = "arinv"
	documentPrefix   = "doc"
	indexSuffix      = "index"
	changesSuffix    = "changes"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Time(context.Context) *redis.TimeCmd
}

// Client wraps the redis connection used by the document store.
type Client struct {
	store     cmdable
	raw       *redis.Client
	namespace string
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return Wrap(raw, cfg.Namespace), nil
}

// Wrap adopts an existing connection. An empty namespace falls back to the default.
func Wrap(raw *redis.Client, namespace string) *Client {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Client{store: raw, raw: raw, namespace: namespace}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Raw exposes the underlying connection for transactions and pub/sub.
func (c *Client) Raw() *redis.Client {
	return c.raw
}

// ServerTime returns the clock of the redis server, used for document timestamps.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	if c.store == nil {
		return time.Time{}, errors.New("redis client not initialized")
	}
	return c.store.Time(ctx).Result()
}

// DocumentKey returns the key a document body is stored under.
func (c *Client) DocumentKey(collection, id string) string {
	return c.buildKey(collection, documentPrefix, id)
}

// IndexKey returns the sorted set ordering a collection by creation time.
func (c *Client) IndexKey(collection string) string {
	return c.buildKey(collection, indexSuffix)
}

// ChangesChannel returns the pub/sub channel announcing changed document ids.
func (c *Client) ChangesChannel(collection string) string {
	return c.buildKey(collection, changesSuffix)
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	namespace := c.namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	clean := []string{namespace}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}
