package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisConfig configures a Redis lock.
type RedisConfig struct {
	// Prefix is prepended to every key. Default: "crossexchange:lock:".
	Prefix string

	// TTL bounds how long a crashed holder can block others. A live holder
	// renews the lease every TTL/3 until it unlocks. Default: 10s.
	TTL time.Duration

	// RetryInterval is the polling interval while waiting. Default: 25ms.
	RetryInterval time.Duration
}

// Redis is a distributed keyed lock built on SET NX PX.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
	logger *slog.Logger
}

// NewRedis creates a Redis lock using client.
func NewRedis(client redis.UniversalClient, cfg RedisConfig, logger *slog.Logger) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "crossexchange:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 25 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, cfg: cfg, logger: logger.With("component", "redis-lock")}
}

// Lock polls until key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.cfg.Prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", k, err)
		}
		if ok {
			return r.hold(k, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold renews the lease in the background and returns the unlock func.
func (r *Redis) hold(key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(r.cfg.TTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !r.extend(key, token) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			r.release(key, token)
		})
	}
}

// extend reports whether the lease is still ours.
func (r *Redis) extend(key, token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.TTL/3)
	defer cancel()
	n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.cfg.TTL.Milliseconds()).Int()
	if err != nil {
		// Transient; the next tick retries while the lease lasts.
		r.logger.Warn("renewing lock failed", "key", key, "error", err)
		return true
	}
	if n == 0 {
		r.logger.Error("lock lost before release", "key", key, "ttl", r.cfg.TTL)
		return false
	}
	return true
}

func (r *Redis) release(key, token string) {
	// The caller's context may already be cancelled; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil {
		r.logger.Warn("releasing lock failed", "key", key, "error", err)
		return
	}
	if n == 0 {
		r.logger.Warn("lock expired before release", "key", key, "ttl", r.cfg.TTL)
	}
}
