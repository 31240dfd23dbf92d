// Package sqlite is a Sessions driver backed by modernc.org/sqlite. Each
// transition is a single conditional statement, so concurrent callers, even
// from separate processes sharing the file, cannot both win.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db *sql.DB
}

var _ store.Sessions = (*Store)(nil)

// NewStore opens the database at dsn. Call ApplyMigrations before use.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// sqlite allows a single writer; one connection also keeps ":memory:"
	// databases from splitting into one database per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: pragma: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sessionColumns = `token_hash, id, display_code, owner_user_id, approver_user_id,
	device_fingerprint, state, created_at, expires_at, authenticated_at`

func (s *Store) Create(ctx context.Context, sess domain.QRSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO qr_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.TokenHash, sess.ID, sess.DisplayCode, sess.OwnerUserID, sess.ApproverUserID,
		sess.DeviceFingerprint, string(sess.State), toMillis(sess.CreatedAt), toMillis(sess.ExpiresAt),
		toNullMillis(sess.AuthenticatedAt),
	)
	if isConstraintViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Store) Get(ctx context.Context, key string, now time.Time) (domain.QRSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM qr_sessions WHERE token_hash = ?`, key))
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
	at := now.UTC()
	sess, err := scanSession(s.db.QueryRowContext(ctx, `
		UPDATE qr_sessions
		SET state = 'authenticated',
		    approver_user_id = ?,
		    device_fingerprint = ?,
		    authenticated_at = ?,
		    expires_at = ?
		WHERE token_hash = ? AND state = 'pending' AND expires_at >= ?
		RETURNING `+sessionColumns,
		a.ApproverUserID, a.DeviceFingerprint, toMillis(at), toMillis(at.Add(grace)),
		key, toMillis(store.Ceil(now)),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QRSession{}, s.classifyMiss(ctx, key, now)
	}
	if err != nil {
		return domain.QRSession{}, err
	}
	return sess, nil
}

func (s *Store) Consume(ctx context.Context, key string, now time.Time) (domain.QRSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `
		DELETE FROM qr_sessions
		WHERE token_hash = ? AND state = 'authenticated' AND expires_at >= ?
		RETURNING `+sessionColumns,
		key, toMillis(store.Ceil(now)),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QRSession{}, s.classifyMiss(ctx, key, now)
	}
	if err != nil {
		return domain.QRSession{}, err
	}
	sess.State = domain.StateConsumed
	return sess, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM qr_sessions WHERE token_hash = ?`, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Sweep(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM qr_sessions WHERE expires_at < ?`, toMillis(store.Ceil(before)))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qr_sessions`).Scan(&n)
	return n, err
}

// classifyMiss explains why a conditional transition matched no row.
func (s *Store) classifyMiss(ctx context.Context, key string, now time.Time) error {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM qr_sessions WHERE token_hash = ?`, key))
	if err != nil {
		return mapNotFound(err)
	}
	if sess.Expired(now) {
		if err := s.evict(ctx, key, now); err != nil {
			return err
		}
		return store.ErrExpired
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

// evict deletes key only if it is still expired at now.
func (s *Store) evict(ctx context.Context, key string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM qr_sessions WHERE token_hash = ? AND expires_at < ?`, key, toMillis(store.Ceil(now)))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.QRSession, error) {
	var (
		sess                 domain.QRSession
		state                string
		createdAt, expiresAt int64
		authenticatedAt      sql.NullInt64
	)
	err := row.Scan(&sess.TokenHash, &sess.ID, &sess.DisplayCode, &sess.OwnerUserID, &sess.ApproverUserID,
		&sess.DeviceFingerprint, &state, &createdAt, &expiresAt, &authenticatedAt)
	if err != nil {
		return domain.QRSession{}, err
	}
	sess.State = domain.State(state)
	sess.CreatedAt = fromMillis(createdAt)
	sess.ExpiresAt = fromMillis(expiresAt)
	if authenticatedAt.Valid {
		t := fromMillis(authenticatedAt.Int64)
		sess.AuthenticatedAt = &t
	}
	return sess, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isConstraintViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func toMillis(t time.Time) int64 { return store.Truncate(t).UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
