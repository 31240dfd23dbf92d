// Package store defines the storage contract for QR sessions. Drivers live
// under store/drivers and all satisfy the same Sessions interface, so the
// handshake never knows whether sessions sit in process memory, sqlite,
// postgres or redis.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
)

var (
	ErrNotFound             = errors.New("store: not found")
	ErrAlreadyExists        = errors.New("store: already exists")
	ErrExpired              = errors.New("store: expired")
	ErrAlreadyAuthenticated = errors.New("store: already authenticated")
	ErrNotAuthenticated     = errors.New("store: not authenticated")
)

// Sessions stores QR sessions keyed by token fingerprint. Every mutation on a
// single key is linearizable: of two concurrent MarkAuthenticated calls
// exactly one succeeds. Callers pass the current time so drivers never
// consult their own clocks. Timestamps are persisted at Precision.
type Sessions interface {
	// Create inserts a new session. ErrAlreadyExists if the key is taken.
	Create(ctx context.Context, s domain.QRSession) error

	// Get returns the session without mutating it. ErrNotFound if unknown.
	// ErrExpired if now is past ExpiresAt, in which case the entry is removed
	// and later calls report ErrNotFound.
	Get(ctx context.Context, tokenHash string, now time.Time) (domain.QRSession, error)

	// MarkAuthenticated moves a pending session to authenticated and sets
	// ExpiresAt to now+grace. ErrNotFound, ErrExpired or
	// ErrAlreadyAuthenticated; a replay never extends the session.
	MarkAuthenticated(ctx context.Context, tokenHash string, a domain.Approval, now time.Time, grace time.Duration) (domain.QRSession, error)

	// Consume removes and returns an authenticated session; the returned
	// copy is in StateConsumed. A pending session is left untouched and
	// ErrNotAuthenticated returned. ErrNotFound and ErrExpired as for Get.
	Consume(ctx context.Context, tokenHash string, now time.Time) (domain.QRSession, error)

	// Delete removes a session in any state. ErrNotFound if unknown.
	Delete(ctx context.Context, tokenHash string) error

	// Sweep removes every session whose ExpiresAt is before the cutoff and
	// returns how many were removed.
	Sweep(ctx context.Context, before time.Time) (int, error)

	// Count returns the number of stored sessions, expired ones included.
	Count(ctx context.Context) (int, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

// Precision is the timestamp resolution every driver persists. Stored
// timestamps are truncated to it and stored expiries are compared against
// Ceil(now), so a session is valid exactly while now <= ExpiresAt whatever
// the resolution of the caller's clock.
const Precision = time.Millisecond

// Truncate returns t in UTC rounded down to Precision.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// Ceil returns t in UTC rounded up to Precision. For an expiry e stored at
// Precision, e >= Ceil(now) holds exactly when e >= now.
func Ceil(t time.Time) time.Time {
	t = t.UTC()
	c := t.Truncate(Precision)
	if c.Before(t) {
		c = c.Add(Precision)
	}
	return c
}

// Normalize truncates every timestamp on s to Precision.
func Normalize(s domain.QRSession) domain.QRSession {
	s.CreatedAt = Truncate(s.CreatedAt)
	s.ExpiresAt = Truncate(s.ExpiresAt)
	if s.AuthenticatedAt != nil {
		at := Truncate(*s.AuthenticatedAt)
		s.AuthenticatedAt = &at
	}
	return s
}

// MapTransitionError translates domain transition errors to store sentinels.
func MapTransitionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSessionExpired):
		return ErrExpired
	case errors.Is(err, domain.ErrAlreadyAuthenticated):
		return ErrAlreadyAuthenticated
	case errors.Is(err, domain.ErrNotAuthenticated):
		return ErrNotAuthenticated
	case errors.Is(err, domain.ErrSessionClosed):
		// Consumed and expired rows are deleted, so a closed session is as
		// good as missing.
		return ErrNotFound
	default:
		return err
	}
}
