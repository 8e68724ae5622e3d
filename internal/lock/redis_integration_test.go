//go:build integration

package lock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("get port: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return client, func() {
		client.Close()
		container.Terminate(ctx)
	}
}

func TestRedisLock(t *testing.T) {
	client, cleanup := startRedis(t)
	defer cleanup()

	l := NewRedis(client, RedisConfig{TTL: 5 * time.Second, RetryInterval: 5 * time.Millisecond}, nil)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "portfolio:1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, "portfolio:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("contended Lock error = %v, want DeadlineExceeded", err)
	}

	unlock()
	if n, _ := client.Exists(ctx, "crossexchange:lock:portfolio:1").Result(); n != 0 {
		t.Errorf("key still present after unlock")
	}

	unlock, err = l.Lock(ctx, "portfolio:1")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	unlock()
}

func TestRedisLockRenewsLease(t *testing.T) {
	client, cleanup := startRedis(t)
	defer cleanup()

	l := NewRedis(client, RedisConfig{TTL: 300 * time.Millisecond, RetryInterval: 5 * time.Millisecond}, nil)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "portfolio:2")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Hold well past the TTL; the lease must survive.
	time.Sleep(time.Second)
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, "portfolio:2"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock while held past TTL = %v, want DeadlineExceeded", err)
	}

	unlock()
	unlock()
	if n, _ := client.Exists(ctx, "crossexchange:lock:portfolio:2").Result(); n != 0 {
		t.Errorf("key still present after unlock")
	}
}
