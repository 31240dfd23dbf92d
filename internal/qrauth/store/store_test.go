package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
)

func TestTruncateAndCeil(t *testing.T) {
	ms := time.Date(2026, 3, 1, 9, 0, 0, int(7*time.Millisecond), time.UTC)

	tests := []struct {
		name      string
		in        time.Time
		wantFloor time.Time
		wantCeil  time.Time
	}{
		{"on boundary", ms, ms, ms},
		{"sub-millisecond", ms.Add(300 * time.Microsecond), ms, ms.Add(time.Millisecond)},
		{"one nanosecond past", ms.Add(time.Nanosecond), ms, ms.Add(time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.wantFloor.Equal(store.Truncate(tt.in)))
			require.True(t, tt.wantCeil.Equal(store.Ceil(tt.in)))
			require.Equal(t, time.UTC, store.Ceil(tt.in.In(time.FixedZone("x", 3600))).Location())
		})
	}
}

func TestNormalize(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 1_500_000, time.UTC)
	s := store.Normalize(domain.QRSession{CreatedAt: at, ExpiresAt: at, AuthenticatedAt: &at})

	want := time.Date(2026, 3, 1, 9, 0, 0, 1_000_000, time.UTC)
	require.True(t, want.Equal(s.CreatedAt))
	require.True(t, want.Equal(s.ExpiresAt))
	require.True(t, want.Equal(*s.AuthenticatedAt))
	require.Equal(t, 1_500_000, at.Nanosecond(), "input is not modified")
}
