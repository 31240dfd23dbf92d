package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/identity"
	"github.com/omnipdf/qrauth/internal/qrauth/metrics"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
	"github.com/omnipdf/qrauth/pkg/cryptox"
	"github.com/omnipdf/qrauth/pkg/idx"
	"github.com/omnipdf/qrauth/pkg/slogx"
)

const (
	DefaultSessionTTL = 5 * time.Minute
	DefaultAuthGrace  = 60 * time.Second

	// Fingerprint collisions on 256-bit tokens do not happen; the bound only
	// keeps a broken entropy source from looping forever.
	maxCreateAttempts = 3
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrBadRequest           = errors.New("bad_request")
	ErrNotFound             = errors.New("qr_code_not_found")
	ErrExpired              = errors.New("QR_CODE_EXPIRED")
	ErrAlreadyAuthenticated = errors.New("qr_code_already_authenticated")
	ErrNotAuthenticated     = errors.New("qr_code_not_authenticated")
)

// CredentialIssuer mints the login credential released by Consume.
type CredentialIssuer interface {
	Issue(ctx context.Context, sess domain.QRSession, now time.Time) (identity.Credential, error)
}

// Metrics receives handshake events. *metrics.Recorder implements it.
type Metrics interface {
	SessionCreated()
	SessionApproved(wait time.Duration)
	Operation(op, result string)
	SessionsSwept(n int)
}

type nopMetrics struct{}

func (nopMetrics) SessionCreated()               {}
func (nopMetrics) SessionApproved(time.Duration) {}
func (nopMetrics) Operation(string, string)      {}
func (nopMetrics) SessionsSwept(int)             {}

// QRService runs the cross-device handshake: an owner device creates a
// session, an approver device authenticates it, the owner polls Verify and
// finally consumes it for a credential.
type QRService struct {
	Store       store.Sessions
	Credentials CredentialIssuer
	Metrics     Metrics
	Fingerprint *cryptox.Fingerprinter
	TTL         time.Duration
	Grace       time.Duration
	Now         func() time.Time
}

// CreatedSession is returned once by Create. Token is the only copy of the
// bearer capability; the store keeps its fingerprint.
type CreatedSession struct {
	Session domain.QRSession
	Token   string
}

// Status is the read-only view Verify returns to a polling owner.
type Status struct {
	Authenticated bool
	State         domain.State
	ExpiresAt     time.Time
}

// ConsumeResult pairs the redeemed session with the credential minted for it.
type ConsumeResult struct {
	Session    domain.QRSession
	Credential identity.Credential
}

// now is truncated to store.Precision so every driver sees the same instant.
func (s *QRService) now() time.Time {
	if s.Now != nil {
		return store.Truncate(s.Now())
	}
	return store.Truncate(time.Now())
}

func (s *QRService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSessionTTL
}

func (s *QRService) grace() time.Duration {
	if s.Grace > 0 {
		return s.Grace
	}
	return DefaultAuthGrace
}

func (s *QRService) metrics() Metrics {
	if s.Metrics != nil {
		return s.Metrics
	}
	return nopMetrics{}
}

// Create starts a pending session for ownerUserID.
func (s *QRService) Create(ctx context.Context, ownerUserID string) (CreatedSession, error) {
	log := slogx.FromContext(ctx)
	if ownerUserID == "" {
		s.metrics().Operation("create", metrics.ResultRejected)
		return CreatedSession{}, ErrUnauthorized
	}

	now := s.now()
	for range maxCreateAttempts {
		token, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return CreatedSession{}, err
		}
		code, err := cryptox.GenerateDisplayCode()
		if err != nil {
			return CreatedSession{}, err
		}

		sess := domain.QRSession{
			ID:          idx.NewAt(now).String(),
			TokenHash:   s.Fingerprint.Fingerprint(token),
			DisplayCode: code,
			OwnerUserID: ownerUserID,
			State:       domain.StatePending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.ttl()),
		}

		err = s.Store.Create(ctx, sess)
		if errors.Is(err, store.ErrAlreadyExists) {
			log.Warn("qr token fingerprint collision, regenerating")
			continue
		}
		if err != nil {
			s.metrics().Operation("create", metrics.ResultError)
			log.Error("failed to store qr session", slog.Any("error", err))
			return CreatedSession{}, fmt.Errorf("create qr session: %w", err)
		}

		s.metrics().SessionCreated()
		s.metrics().Operation("create", metrics.ResultOK)
		log.Info("qr session created",
			slog.String("session_id", sess.ID),
			slog.String("owner_user_id", ownerUserID),
			slog.String("token_fp", s.Fingerprint.Short(token)),
			slog.Time("expires_at", sess.ExpiresAt),
		)
		return CreatedSession{Session: sess, Token: token}, nil
	}

	s.metrics().Operation("create", metrics.ResultError)
	return CreatedSession{}, errors.New("create qr session: could not allocate a unique token")
}

// Authenticate records approverUserID's approval of the session behind
// token. The session then stays valid for the grace period only. deviceToken
// is optional and only its fingerprint is kept.
func (s *QRService) Authenticate(ctx context.Context, token, approverUserID, deviceToken string) (domain.QRSession, error) {
	log := slogx.FromContext(ctx)
	if approverUserID == "" {
		s.metrics().Operation("authenticate", metrics.ResultRejected)
		return domain.QRSession{}, ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics().Operation("authenticate", metrics.ResultRejected)
		return domain.QRSession{}, ErrBadRequest
	}

	approval := domain.Approval{ApproverUserID: approverUserID}
	if deviceToken = strings.TrimSpace(deviceToken); deviceToken != "" {
		approval.DeviceFingerprint = s.Fingerprint.Fingerprint(deviceToken)
	}

	now := s.now()
	sess, err := s.Store.MarkAuthenticated(ctx, s.Fingerprint.Fingerprint(token), approval, now, s.grace())
	if err != nil {
		err = mapStoreError(err)
		s.metrics().Operation("authenticate", resultOf(err))
		log.Info("qr session approval refused",
			slog.String("token_fp", s.Fingerprint.Short(token)),
			slog.String("approver_user_id", approverUserID),
			slog.String("reason", err.Error()),
		)
		return domain.QRSession{}, err
	}

	s.metrics().Operation("authenticate", metrics.ResultOK)
	s.metrics().SessionApproved(now.Sub(sess.CreatedAt))
	log.Info("qr session approved",
		slog.String("session_id", sess.ID),
		slog.String("owner_user_id", sess.OwnerUserID),
		slog.String("approver_user_id", approverUserID),
		slog.Time("expires_at", sess.ExpiresAt),
	)
	return sess, nil
}

// Verify reports whether the session behind token has been approved. It
// never mutates the session apart from lazily dropping an expired one.
func (s *QRService) Verify(ctx context.Context, token string) (Status, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Status{}, ErrBadRequest
	}

	sess, err := s.Store.Get(ctx, s.Fingerprint.Fingerprint(token), s.now())
	if err != nil {
		err = mapStoreError(err)
		s.metrics().Operation("verify", resultOf(err))
		return Status{}, err
	}

	s.metrics().Operation("verify", metrics.ResultOK)
	return Status{
		Authenticated: sess.Authenticated(),
		State:         sess.State,
		ExpiresAt:     sess.ExpiresAt,
	}, nil
}

// Consume redeems an approved session for its owner and returns a login
// credential. The session is destroyed, so the token cannot be replayed.
// Sessions owned by someone else look exactly like unknown ones.
func (s *QRService) Consume(ctx context.Context, token, ownerUserID string) (ConsumeResult, error) {
	log := slogx.FromContext(ctx)
	if ownerUserID == "" {
		s.metrics().Operation("consume", metrics.ResultRejected)
		return ConsumeResult{}, ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics().Operation("consume", metrics.ResultRejected)
		return ConsumeResult{}, ErrBadRequest
	}

	key := s.Fingerprint.Fingerprint(token)
	now := s.now()

	sess, err := s.ownedSession(ctx, key, ownerUserID, now)
	if err != nil {
		s.metrics().Operation("consume", resultOf(err))
		return ConsumeResult{}, err
	}
	if !sess.Authenticated() {
		s.metrics().Operation("consume", metrics.ResultNotAuthenticated)
		return ConsumeResult{}, ErrNotAuthenticated
	}

	// Approver and session id are frozen once authenticated, so the
	// credential can be minted before the race to consume is settled. Only
	// the winner gets to see it.
	cred, err := s.Credentials.Issue(ctx, sess, now)
	if err != nil {
		s.metrics().Operation("consume", metrics.ResultError)
		log.Error("failed to issue qr credential", slog.String("session_id", sess.ID), slog.Any("error", err))
		return ConsumeResult{}, fmt.Errorf("consume qr session: %w", err)
	}

	consumed, err := s.Store.Consume(ctx, key, now)
	if err != nil {
		err = mapStoreError(err)
		s.metrics().Operation("consume", resultOf(err))
		return ConsumeResult{}, err
	}

	s.metrics().Operation("consume", metrics.ResultOK)
	log.Info("qr session consumed",
		slog.String("session_id", consumed.ID),
		slog.String("owner_user_id", consumed.OwnerUserID),
		slog.String("approver_user_id", consumed.ApproverUserID),
	)
	return ConsumeResult{Session: consumed, Credential: cred}, nil
}

// Cancel lets the owner abandon a session in any live state.
func (s *QRService) Cancel(ctx context.Context, token, ownerUserID string) error {
	if ownerUserID == "" {
		return ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrBadRequest
	}

	key := s.Fingerprint.Fingerprint(token)
	sess, err := s.ownedSession(ctx, key, ownerUserID, s.now())
	if err != nil {
		s.metrics().Operation("cancel", resultOf(err))
		return err
	}
	if err := s.Store.Delete(ctx, key); err != nil {
		err = mapStoreError(err)
		s.metrics().Operation("cancel", resultOf(err))
		return err
	}

	s.metrics().Operation("cancel", metrics.ResultOK)
	slogx.FromContext(ctx).Info("qr session cancelled", slog.String("session_id", sess.ID))
	return nil
}

// ownedSession loads the session behind key and hides it from anyone but
// its owner. The owner never changes, so checking it outside the store's
// atomic transition is safe.
func (s *QRService) ownedSession(ctx context.Context, key, ownerUserID string, now time.Time) (domain.QRSession, error) {
	sess, err := s.Store.Get(ctx, key, now)
	if err != nil {
		return domain.QRSession{}, mapStoreError(err)
	}
	if sess.OwnerUserID != ownerUserID {
		slogx.FromContext(ctx).Warn("qr session accessed by non-owner",
			slog.String("session_id", sess.ID),
			slog.String("user_id", ownerUserID),
		)
		return domain.QRSession{}, ErrNotFound
	}
	return sess, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrExpired):
		return ErrExpired
	case errors.Is(err, store.ErrAlreadyAuthenticated):
		return ErrAlreadyAuthenticated
	case errors.Is(err, store.ErrNotAuthenticated):
		return ErrNotAuthenticated
	default:
		return err
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrExpired):
		return metrics.ResultExpired
	case errors.Is(err, ErrAlreadyAuthenticated):
		return metrics.ResultAlreadyAuthenticated
	case errors.Is(err, ErrNotAuthenticated):
		return metrics.ResultNotAuthenticated
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrBadRequest):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
