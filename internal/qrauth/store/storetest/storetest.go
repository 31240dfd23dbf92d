// Package storetest is a conformance suite run by every Sessions driver.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
	"github.com/omnipdf/qrauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Sessions

// Drivers persist millisecond precision, so the suite's clock does too.
var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	ttl   = 5 * time.Minute
	grace = time.Minute
)

var keySeq int64
var keyMu sync.Mutex

func newSession(owner string) domain.QRSession {
	keyMu.Lock()
	keySeq++
	n := keySeq
	keyMu.Unlock()

	return domain.QRSession{
		ID:          idx.NewAt(base).String(),
		TokenHash:   fmt.Sprintf("%064x", n),
		DisplayCode: "BCDFGHJK",
		OwnerUserID: owner,
		State:       domain.StatePending,
		CreatedAt:   base,
		ExpiresAt:   base.Add(ttl),
	}
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) store.Sessions {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("create and get", func(t *testing.T) {
		s := open(t)
		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))

		got, err := s.Get(ctx, sess.TokenHash, base.Add(time.Second))
		require.NoError(t, err)
		require.Equal(t, sess.ID, got.ID)
		require.Equal(t, sess.OwnerUserID, got.OwnerUserID)
		require.Equal(t, sess.DisplayCode, got.DisplayCode)
		require.Equal(t, domain.StatePending, got.State)
		require.True(t, sess.CreatedAt.Equal(got.CreatedAt))
		require.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))
		require.Nil(t, got.AuthenticatedAt)

		require.ErrorIs(t, s.Create(ctx, sess), store.ErrAlreadyExists)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "missing", base)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("get expired removes entry", func(t *testing.T) {
		s := open(t)
		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))

		_, err := s.Get(ctx, sess.TokenHash, sess.ExpiresAt)
		require.NoError(t, err, "expiry instant is still valid")

		_, err = s.Get(ctx, sess.TokenHash, sess.ExpiresAt.Add(time.Millisecond))
		require.ErrorIs(t, err, store.ErrExpired)

		_, err = s.Get(ctx, sess.TokenHash, sess.ExpiresAt.Add(time.Second))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("mark authenticated", func(t *testing.T) {
		s := open(t)
		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))

		at := base.Add(10 * time.Second)
		got, err := s.MarkAuthenticated(ctx, sess.TokenHash, domain.Approval{ApproverUserID: "u2", DeviceFingerprint: "dev"}, at, grace)
		require.NoError(t, err)
		require.Equal(t, domain.StateAuthenticated, got.State)
		require.True(t, at.Add(grace).Equal(got.ExpiresAt))

		stored, err := s.Get(ctx, sess.TokenHash, at.Add(time.Second))
		require.NoError(t, err)
		require.Equal(t, domain.StateAuthenticated, stored.State)
		require.Equal(t, "u2", stored.ApproverUserID)
		require.Equal(t, "dev", stored.DeviceFingerprint)
		require.NotNil(t, stored.AuthenticatedAt)
		require.True(t, at.Equal(*stored.AuthenticatedAt))
		require.True(t, at.Add(grace).Equal(stored.ExpiresAt))

		// Replay neither succeeds nor extends
		_, err = s.MarkAuthenticated(ctx, sess.TokenHash, domain.Approval{ApproverUserID: "u3"}, at.Add(30*time.Second), grace)
		require.ErrorIs(t, err, store.ErrAlreadyAuthenticated)

		stored, err = s.Get(ctx, sess.TokenHash, at.Add(31*time.Second))
		require.NoError(t, err)
		require.True(t, at.Add(grace).Equal(stored.ExpiresAt))
		require.Equal(t, "u2", stored.ApproverUserID)
	})

	t.Run("mark authenticated unknown or expired", func(t *testing.T) {
		s := open(t)
		_, err := s.MarkAuthenticated(ctx, "missing", domain.Approval{ApproverUserID: "u2"}, base, grace)
		require.ErrorIs(t, err, store.ErrNotFound)

		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))
		_, err = s.MarkAuthenticated(ctx, sess.TokenHash, domain.Approval{ApproverUserID: "u2"}, sess.ExpiresAt.Add(time.Second), grace)
		require.ErrorIs(t, err, store.ErrExpired)
	})

	t.Run("consume", func(t *testing.T) {
		s := open(t)
		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))

		// Pending sessions cannot be redeemed and stay put
		_, err := s.Consume(ctx, sess.TokenHash, base.Add(time.Second))
		require.ErrorIs(t, err, store.ErrNotAuthenticated)
		_, err = s.Get(ctx, sess.TokenHash, base.Add(time.Second))
		require.NoError(t, err)

		_, err = s.MarkAuthenticated(ctx, sess.TokenHash, domain.Approval{ApproverUserID: "u2"}, base.Add(2*time.Second), grace)
		require.NoError(t, err)

		got, err := s.Consume(ctx, sess.TokenHash, base.Add(3*time.Second))
		require.NoError(t, err)
		require.Equal(t, domain.StateConsumed, got.State)
		require.Equal(t, "u1", got.OwnerUserID)
		require.Equal(t, "u2", got.ApproverUserID)

		// Gone for good
		_, err = s.Get(ctx, sess.TokenHash, base.Add(4*time.Second))
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.MarkAuthenticated(ctx, sess.TokenHash, domain.Approval{ApproverUserID: "u2"}, base.Add(4*time.Second), grace)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Consume(ctx, sess.TokenHash, base.Add(4*time.Second))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("consume expired", func(t *testing.T) {
		s := open(t)
		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))
		_, err := s.MarkAuthenticated(ctx, sess.TokenHash, domain.Approval{ApproverUserID: "u2"}, base, grace)
		require.NoError(t, err)

		_, err = s.Consume(ctx, sess.TokenHash, base.Add(grace+time.Second))
		require.ErrorIs(t, err, store.ErrExpired)
	})

	t.Run("sub-millisecond expiry is never extended", func(t *testing.T) {
		s := open(t)
		expiry := base.Add(ttl)

		lapsed := newSession("u1")
		lapsed.ExpiresAt = expiry.Add(500 * time.Microsecond)
		require.NoError(t, s.Create(ctx, lapsed))

		_, err := s.MarkAuthenticated(ctx, lapsed.TokenHash, domain.Approval{ApproverUserID: "u2"}, expiry.Add(700*time.Microsecond), grace)
		require.ErrorIs(t, err, store.ErrExpired)
		_, err = s.Get(ctx, lapsed.TokenHash, base)
		require.ErrorIs(t, err, store.ErrNotFound, "expired entry is removed")

		live := newSession("u1")
		live.ExpiresAt = expiry.Add(500 * time.Microsecond)
		require.NoError(t, s.Create(ctx, live))

		got, err := s.MarkAuthenticated(ctx, live.TokenHash, domain.Approval{ApproverUserID: "u2"}, expiry, grace)
		require.NoError(t, err, "the persisted expiry instant is still valid")
		require.True(t, got.ExpiresAt.Equal(expiry.Add(grace)))

		_, err = s.Consume(ctx, live.TokenHash, expiry.Add(grace+300*time.Microsecond))
		require.ErrorIs(t, err, store.ErrExpired)
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))

		require.NoError(t, s.Delete(ctx, sess.TokenHash))
		require.ErrorIs(t, s.Delete(ctx, sess.TokenHash), store.ErrNotFound)

		_, err := s.Get(ctx, sess.TokenHash, base)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("sweep", func(t *testing.T) {
		s := open(t)

		short := newSession("u1")
		short.ExpiresAt = base.Add(time.Minute)
		long := newSession("u1")
		long.ExpiresAt = base.Add(time.Hour)
		require.NoError(t, s.Create(ctx, short))
		require.NoError(t, s.Create(ctx, long))

		n, err := s.Sweep(ctx, base.Add(30*time.Second))
		require.NoError(t, err)
		require.Zero(t, n)

		n, err = s.Sweep(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)
		require.Equal(t, 1, n)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		_, err = s.Get(ctx, long.TokenHash, base.Add(2*time.Minute))
		require.NoError(t, err)
	})

	t.Run("concurrent mark authenticated has one winner", func(t *testing.T) {
		s := open(t)
		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			replays   int
			other     []error
		)
		start := make(chan struct{})
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := s.MarkAuthenticated(ctx, sess.TokenHash,
					domain.Approval{ApproverUserID: fmt.Sprintf("approver-%d", i)}, base.Add(time.Second), grace)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, store.ErrAlreadyAuthenticated):
					replays++
				default:
					other = append(other, err)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Empty(t, other)
		require.Equal(t, 1, successes)
		require.Equal(t, workers-1, replays)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		s := open(t)
		sess := newSession("u1")
		require.NoError(t, s.Create(ctx, sess))
		_, err := s.MarkAuthenticated(ctx, sess.TokenHash, domain.Approval{ApproverUserID: "u2"}, base, grace)
		require.NoError(t, err)

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			missing   int
		)
		start := make(chan struct{})
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := s.Consume(ctx, sess.TokenHash, base.Add(time.Second))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else if errors.Is(err, store.ErrNotFound) {
					missing++
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, 1, successes)
		require.Equal(t, workers-1, missing)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, open(t).Ping(ctx))
	})
}
