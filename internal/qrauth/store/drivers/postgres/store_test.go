package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/omnipdf/qrauth/internal/qrauth/store"
	"github.com/omnipdf/qrauth/internal/qrauth/store/drivers/postgres"
	"github.com/omnipdf/qrauth/internal/qrauth/store/storetest"
)

// setupPostgres starts a throwaway postgres and returns its DSN.
func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "qrauth",
			"POSTGRES_PASSWORD": "qrauth",
			"POSTGRES_DB":       "qrauth",
		},
		// postgres logs readiness twice: once for the init server, once for the real one
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://qrauth:qrauth@%s:%s/qrauth?sslmode=disable", host, port.Port())
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	dsn := setupPostgres(t)
	ctx := context.Background()

	s, err := postgres.NewStore(ctx, dsn, postgres.Options{})
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.ApplyMigrations(), "migrations are idempotent")
	require.NoError(t, s.Close())

	storetest.Run(t, func(t *testing.T) store.Sessions {
		s, err := postgres.NewStore(ctx, dsn, postgres.Options{MaxConns: 8})
		require.NoError(t, err)
		require.NoError(t, s.Truncate(ctx))
		return s
	})
}
