// Package postgres is a Sessions driver on a pgx connection pool, for
// deployments running several replicas against one database. Transitions are
// single conditional statements; postgres row locks serialize them.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Sessions = (*Store)(nil)

// Options tune the pool; zero values keep pgx defaults.
type Options struct {
	MaxConns int32
	MinConns int32
}

// NewStore connects to dsn and verifies connectivity.
func NewStore(ctx context.Context, dsn string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	s := &Store{pool: pool}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that a connection can be acquired and used.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const sessionColumns = `token_hash, id, display_code, owner_user_id, approver_user_id,
	device_fingerprint, state, created_at, expires_at, authenticated_at`

func (s *Store) Create(ctx context.Context, sess domain.QRSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO qr_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.TokenHash, sess.ID, sess.DisplayCode, sess.OwnerUserID, sess.ApproverUserID,
		sess.DeviceFingerprint, string(sess.State), store.Truncate(sess.CreatedAt), store.Truncate(sess.ExpiresAt),
		truncatePtr(sess.AuthenticatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Store) Get(ctx context.Context, key string, now time.Time) (domain.QRSession, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM qr_sessions WHERE token_hash = $1`, key))
	if err != nil {
		return domain.QRSession{}, mapNotFound(err)
	}
	if sess.Expired(now) {
		if err := s.evict(ctx, key, now); err != nil {
			return domain.QRSession{}, err
		}
		return domain.QRSession{}, store.ErrExpired
	}
	return sess, nil
}

func (s *Store) MarkAuthenticated(ctx context.Context, key string, a domain.Approval, now time.Time, grace time.Duration) (domain.QRSession, error) {
	at := store.Truncate(now)
	sess, err := scanSession(s.pool.QueryRow(ctx, `
		UPDATE qr_sessions
		SET state = 'authenticated',
		    approver_user_id = $1,
		    device_fingerprint = $2,
		    authenticated_at = $3,
		    expires_at = $4
		WHERE token_hash = $5 AND state = 'pending' AND expires_at >= $6
		RETURNING `+sessionColumns,
		a.ApproverUserID, a.DeviceFingerprint, at, store.Truncate(now.Add(grace)), key, store.Ceil(now),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QRSession{}, s.classifyMiss(ctx, key, now)
	}
	if err != nil {
		return domain.QRSession{}, err
	}
	return sess, nil
}

func (s *Store) Consume(ctx context.Context, key string, now time.Time) (domain.QRSession, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, `
		DELETE FROM qr_sessions
		WHERE token_hash = $1 AND state = 'authenticated' AND expires_at >= $2
		RETURNING `+sessionColumns,
		key, store.Ceil(now),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QRSession{}, s.classifyMiss(ctx, key, now)
	}
	if err != nil {
		return domain.QRSession{}, err
	}
	sess.State = domain.StateConsumed
	return sess, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM qr_sessions WHERE token_hash = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Sweep(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM qr_sessions WHERE expires_at < $1`, store.Ceil(before))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM qr_sessions`).Scan(&n)
	return n, err
}

// classifyMiss explains why a conditional transition matched no row.
func (s *Store) classifyMiss(ctx context.Context, key string, now time.Time) error {
	sess, err := s.Get(ctx, key, now)
	if err != nil {
		return err
	}
	switch sess.State {
	case domain.StateAuthenticated:
		return store.ErrAlreadyAuthenticated
	case domain.StatePending:
		return store.ErrNotAuthenticated
	default:
		return store.ErrNotFound
	}
}

func (s *Store) evict(ctx context.Context, key string, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM qr_sessions WHERE token_hash = $1 AND expires_at < $2`, key, store.Ceil(now))
	return err
}

func scanSession(row pgx.Row) (domain.QRSession, error) {
	var (
		sess  domain.QRSession
		state string
	)
	err := row.Scan(&sess.TokenHash, &sess.ID, &sess.DisplayCode, &sess.OwnerUserID, &sess.ApproverUserID,
		&sess.DeviceFingerprint, &state, &sess.CreatedAt, &sess.ExpiresAt, &sess.AuthenticatedAt)
	if err != nil {
		return domain.QRSession{}, err
	}
	sess.State = domain.State(state)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	if sess.AuthenticatedAt != nil {
		t := sess.AuthenticatedAt.UTC()
		sess.AuthenticatedAt = &t
	}
	return sess, nil
}

func truncatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := store.Truncate(*t)
	return &v
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
