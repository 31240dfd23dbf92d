package domain

import (
	"errors"
	"time"
)

// State is the lifecycle position of a QR session. States only move forward:
// pending -> authenticated -> consumed, or any live state -> expired. Stores
// delete lapsed sessions instead of persisting StateExpired; it is only
// reported to watchers.
type State string

const (
	StatePending       State = "pending"
	StateAuthenticated State = "authenticated"
	StateConsumed      State = "consumed"
	StateExpired       State = "expired"
)

// Transition errors. Stores translate these into their own sentinels.
var (
	ErrSessionExpired       = errors.New("domain: qr session expired")
	ErrAlreadyAuthenticated = errors.New("domain: qr session already authenticated")
	ErrNotAuthenticated     = errors.New("domain: qr session not authenticated")
	ErrSessionClosed        = errors.New("domain: qr session no longer live")
)

// QRSession links an owner device waiting on a QR code with the approver
// device that scans it.
type QRSession struct {
	ID                string     // ULID, public identifier
	TokenHash         string     // fingerprint of the bearer token, the store key
	DisplayCode       string     // short code shown next to the QR image
	OwnerUserID       string     // creator, immutable
	ApproverUserID    string     // set once on approval
	DeviceFingerprint string     // fingerprint of the approver's deviceToken, audit only
	State             State      // see State
	CreatedAt         time.Time  // UTC
	ExpiresAt         time.Time  // UTC, replaced once by Authenticate
	AuthenticatedAt   *time.Time // UTC
}

// Approval carries what the approver device asserts when scanning a code.
type Approval struct {
	ApproverUserID    string
	DeviceFingerprint string
}

// Expired reports whether the session's validity has lapsed at now. The
// boundary instant itself is still valid.
func (s QRSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Authenticated reports whether an approver has accepted the session.
func (s QRSession) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Authenticate moves a pending session to authenticated and restarts its
// validity at now+grace so the owner has a bounded window to redeem it. It
// can only succeed once; a replay never extends the session again.
func (s *QRSession) Authenticate(a Approval, now time.Time, grace time.Duration) error {
	if s.Expired(now) {
		return ErrSessionExpired
	}
	switch s.State {
	case StatePending:
	case StateAuthenticated:
		return ErrAlreadyAuthenticated
	default:
		return ErrSessionClosed
	}

	at := now.UTC()
	s.State = StateAuthenticated
	s.ApproverUserID = a.ApproverUserID
	s.DeviceFingerprint = a.DeviceFingerprint
	s.AuthenticatedAt = &at
	s.ExpiresAt = at.Add(grace)
	return nil
}

// Consume marks an authenticated session as redeemed.
func (s *QRSession) Consume(now time.Time) error {
	if s.Expired(now) {
		return ErrSessionExpired
	}
	switch s.State {
	case StateAuthenticated:
		s.State = StateConsumed
		return nil
	case StatePending:
		return ErrNotAuthenticated
	default:
		return ErrSessionClosed
	}
}
