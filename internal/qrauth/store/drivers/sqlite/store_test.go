package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
	"github.com/omnipdf/qrauth/internal/qrauth/store/drivers/sqlite"
	"github.com/omnipdf/qrauth/internal/qrauth/store/storetest"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) store.Sessions {
		return newStore(t)
	})
}

func TestSQLiteStore_MigrationsIdempotent(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.ApplyMigrations())
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "qr.db")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Create(ctx, domain.QRSession{
		ID: "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", TokenHash: "abc", DisplayCode: "BCDFGHJK",
		OwnerUserID: "u1", State: domain.StatePending, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, s.Close())

	s, err = sqlite.NewStore(dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.ApplyMigrations())

	got, err := s.Get(ctx, "abc", now)
	require.NoError(t, err)
	require.Equal(t, "u1", got.OwnerUserID)
}
