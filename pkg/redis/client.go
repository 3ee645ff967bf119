package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adsynchq/adsync-backend/pkg/config"
	"github.com/adsynchq/adsync-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace  = "adsync"
	runLockPrefix = "run_lock"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Deletes the lock only while the caller still owns it. Without the owner
// check a worker that outlived the TTL would free a lock some other worker
// has since acquired.
const releaseRunLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Client wraps the redis connection helpers used by the sync worker.
type Client struct {
	store      cmdable
	raw        *redis.Client
	runLockTTL time.Duration
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}

	ttl := cfg.RunLockTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Client{store: raw, raw: raw, runLockTTL: ttl}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
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

// RunLockKey builds the per-account lock key.
func (c *Client) RunLockKey(accountID string) string {
	return fmt.Sprintf("%s:%s:%s", keyNamespace, runLockPrefix, strings.TrimSpace(accountID))
}

// AcquireRunLock takes the per-account sync lock. It returns false when a
// run for the account is already in flight. The TTL bounds how long a
// crashed worker can hold the lock.
func (c *Client) AcquireRunLock(ctx context.Context, accountID, runID string) (bool, error) {
	if c == nil || c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.store.SetNX(ctx, c.RunLockKey(accountID), runID, c.runLockTTL).Result()
}

// ReleaseRunLock frees the per-account sync lock, but only when runID still
// matches the stored token. A release after the TTL expired and another run
// took over is a no-op.
func (c *Client) ReleaseRunLock(ctx context.Context, accountID, runID string) error {
	if c == nil || c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Eval(ctx, releaseRunLockScript, []string{c.RunLockKey(accountID)}, runID).Err()
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close terminates the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
