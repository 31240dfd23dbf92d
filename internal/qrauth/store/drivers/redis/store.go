// Package redis is a Sessions driver on go-redis. Each session is a JSON
// document under its own key and a sorted set indexes keys by expiry for
// Count and Sweep. Transitions run as WATCH/MULTI transactions and retry when
// another writer touches the key first.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
)

const (
	defaultPrefix = "qr:"
	defaultSlack  = 10 * time.Minute

	// Each failed round means another writer committed, so a handful of
	// contenders settle well within this.
	maxTxRetries = 64
)

// ErrContention is returned when a transition kept losing WATCH races.
var ErrContention = errors.New("redis: too much contention on session key")

// Options configure the driver.
type Options struct {
	// Prefix namespaces every key. Default "qr:".
	Prefix string
	// KeySlack is how long a key outlives its session before redis drops it
	// on its own. Sweep normally gets there first. Default 10m.
	KeySlack time.Duration
}

type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	slack  time.Duration
}

var _ store.Sessions = (*Store)(nil)

// NewStore connects to a redis:// URL and verifies connectivity.
func NewStore(ctx context.Context, url string, opts Options) (*Store, error) {
	ropts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	s := NewStoreFromClient(goredis.NewClient(ropts), opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = s.rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return s, nil
}

// NewStoreFromClient wraps an existing client; Close will close it.
func NewStoreFromClient(rdb goredis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.KeySlack <= 0 {
		opts.KeySlack = defaultSlack
	}
	return &Store{rdb: rdb, prefix: opts.Prefix, slack: opts.KeySlack}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) sessionKey(tokenHash string) string { return s.prefix + "session:" + tokenHash }
func (s *Store) indexKey() string                   { return s.prefix + "sessions:by_expiry" }

// record is the stored JSON form of a session.
type record struct {
	ID                string     `json:"id"`
	TokenHash         string     `json:"token_hash"`
	DisplayCode       string     `json:"display_code"`
	OwnerUserID       string     `json:"owner_user_id"`
	ApproverUserID    string     `json:"approver_user_id,omitempty"`
	DeviceFingerprint string     `json:"device_fingerprint,omitempty"`
	State             string     `json:"state"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	AuthenticatedAt   *time.Time `json:"authenticated_at,omitempty"`
}

func encode(sess domain.QRSession) ([]byte, error) {
	sess = store.Normalize(sess)
	return json.Marshal(record{
		ID:                sess.ID,
		TokenHash:         sess.TokenHash,
		DisplayCode:       sess.DisplayCode,
		OwnerUserID:       sess.OwnerUserID,
		ApproverUserID:    sess.ApproverUserID,
		DeviceFingerprint: sess.DeviceFingerprint,
		State:             string(sess.State),
		CreatedAt:         sess.CreatedAt.UTC(),
		ExpiresAt:         sess.ExpiresAt.UTC(),
		AuthenticatedAt:   sess.AuthenticatedAt,
	})
}

func decode(raw []byte) (domain.QRSession, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.QRSession{}, fmt.Errorf("redis: decode session: %w", err)
	}
	return domain.QRSession{
		ID:                r.ID,
		TokenHash:         r.TokenHash,
		DisplayCode:       r.DisplayCode,
		OwnerUserID:       r.OwnerUserID,
		ApproverUserID:    r.ApproverUserID,
		DeviceFingerprint: r.DeviceFingerprint,
		State:             domain.State(r.State),
		CreatedAt:         r.CreatedAt.UTC(),
		ExpiresAt:         r.ExpiresAt.UTC(),
		AuthenticatedAt:   r.AuthenticatedAt,
	}, nil
}

// load reads a session inside a WATCH. redis.Nil becomes ErrNotFound.
func (s *Store) load(ctx context.Context, tx *goredis.Tx, key string) (domain.QRSession, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.QRSession{}, store.ErrNotFound
	}
	if err != nil {
		return domain.QRSession{}, err
	}
	return decode(raw)
}

// put writes sess with a TTL of validity plus slack. The TTL is relative so
// redis never judges expiry against its own clock.
func (s *Store) put(ctx context.Context, pipe goredis.Pipeliner, sess domain.QRSession, validFor time.Duration) error {
	raw, err := encode(sess)
	if err != nil {
		return err
	}
	key := s.sessionKey(sess.TokenHash)
	pipe.Set(ctx, key, raw, max(validFor, 0)+s.slack)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(sess.ExpiresAt.UnixMilli()), Member: sess.TokenHash})
	return nil
}

func (s *Store) remove(ctx context.Context, pipe goredis.Pipeliner, tokenHash string) {
	pipe.Del(ctx, s.sessionKey(tokenHash))
	pipe.ZRem(ctx, s.indexKey(), tokenHash)
}

// watch runs fn in a WATCH on the session key, retrying lost races.
func (s *Store) watch(ctx context.Context, tokenHash string, fn func(*goredis.Tx) error) error {
	key := s.sessionKey(tokenHash)
	for range maxTxRetries {
		err := s.rdb.Watch(ctx, fn, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

func (s *Store) Create(ctx context.Context, sess domain.QRSession) error {
	return s.watch(ctx, sess.TokenHash, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, s.sessionKey(sess.TokenHash)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return s.put(ctx, pipe, sess, sess.ExpiresAt.Sub(sess.CreatedAt))
		})
		return err
	})
}

func (s *Store) Get(ctx context.Context, tokenHash string, now time.Time) (domain.QRSession, error) {
	var out domain.QRSession
	err := s.watch(ctx, tokenHash, func(tx *goredis.Tx) error {
		sess, err := s.load(ctx, tx, s.sessionKey(tokenHash))
		if err != nil {
			return err
		}
		if sess.Expired(now) {
			return s.evict(ctx, tx, tokenHash)
		}
		out = sess
		return nil
	})
	return out, err
}

// evict deletes an expired session and reports ErrExpired once the delete
// has committed.
func (s *Store) evict(ctx context.Context, tx *goredis.Tx, tokenHash string) error {
	_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		s.remove(ctx, pipe, tokenHash)
		return nil
	})
	if err != nil {
		return err
	}
	return store.ErrExpired
}

func (s *Store) MarkAuthenticated(ctx context.Context, tokenHash string, a domain.Approval, now time.Time, grace time.Duration) (domain.QRSession, error) {
	var out domain.QRSession
	err := s.watch(ctx, tokenHash, func(tx *goredis.Tx) error {
		sess, err := s.load(ctx, tx, s.sessionKey(tokenHash))
		if err != nil {
			return err
		}
		if err := sess.Authenticate(a, now, grace); err != nil {
			if errors.Is(err, domain.ErrSessionExpired) {
				return s.evict(ctx, tx, tokenHash)
			}
			return store.MapTransitionError(err)
		}
		sess = store.Normalize(sess)
		if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return s.put(ctx, pipe, sess, grace)
		}); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *Store) Consume(ctx context.Context, tokenHash string, now time.Time) (domain.QRSession, error) {
	var out domain.QRSession
	err := s.watch(ctx, tokenHash, func(tx *goredis.Tx) error {
		sess, err := s.load(ctx, tx, s.sessionKey(tokenHash))
		if err != nil {
			return err
		}
		if err := sess.Consume(now); err != nil {
			if errors.Is(err, domain.ErrSessionExpired) {
				return s.evict(ctx, tx, tokenHash)
			}
			return store.MapTransitionError(err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			s.remove(ctx, pipe, tokenHash)
			return nil
		}); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *Store) Delete(ctx context.Context, tokenHash string) error {
	var del *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.sessionKey(tokenHash))
		pipe.ZRem(ctx, s.indexKey(), tokenHash)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Sweep removes sessions indexed with an expiry before the cutoff. Keys that
// redis already dropped on TTL are cleaned out of the index as well.
func (s *Store) Sweep(ctx context.Context, before time.Time) (int, error) {
	upper := fmt.Sprintf("(%d", store.Ceil(before).UnixMilli())
	hashes, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), &goredis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, h := range hashes {
		err := s.watch(ctx, h, func(tx *goredis.Tx) error {
			sess, err := s.load(ctx, tx, s.sessionKey(h))
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return err
			case !sess.ExpiresAt.Before(before):
				// Re-indexed by a concurrent transition.
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				s.remove(ctx, pipe, h)
				return nil
			})
			if err == nil {
				removed++
			}
			return err
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, s.indexKey()).Result()
	return int(n), err
}
