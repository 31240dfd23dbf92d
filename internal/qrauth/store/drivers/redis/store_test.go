package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
	"github.com/omnipdf/qrauth/internal/qrauth/store/drivers/redis"
	"github.com/omnipdf/qrauth/internal/qrauth/store/storetest"
)

func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	url := setupRedis(t)
	ctx := context.Background()

	storetest.Run(t, func(t *testing.T) store.Sessions {
		s, err := redis.NewStore(ctx, url, redis.Options{})
		require.NoError(t, err)

		opts, err := goredis.ParseURL(url)
		require.NoError(t, err)
		rdb := goredis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		require.NoError(t, rdb.FlushDB(ctx).Err())

		return s
	})

	t.Run("keys carry a ttl", func(t *testing.T) {
		opts, err := goredis.ParseURL(url)
		require.NoError(t, err)
		rdb := goredis.NewClient(opts)
		require.NoError(t, rdb.FlushDB(ctx).Err())

		s := redis.NewStoreFromClient(rdb, redis.Options{Prefix: "ttl:", KeySlack: time.Minute})
		defer func() { _ = s.Close() }()

		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		require.NoError(t, s.Create(ctx, domain.QRSession{
			ID: "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", TokenHash: "abc", DisplayCode: "BCDFGHJK",
			OwnerUserID: "u1", State: domain.StatePending, CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
		}))

		ttl, err := rdb.TTL(ctx, "ttl:session:abc").Result()
		require.NoError(t, err)
		require.Greater(t, ttl, 5*time.Minute)
		require.LessOrEqual(t, ttl, 6*time.Minute)
	})
}
