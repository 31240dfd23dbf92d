// Package memory is the single-process Sessions driver. One mutex guards the
// map and every critical section is O(1) apart from Sweep.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
)

type Store struct {
	mu       sync.Mutex
	sessions map[string]domain.QRSession
}

var _ store.Sessions = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]domain.QRSession)}
}

func (s *Store) Create(_ context.Context, sess domain.QRSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.TokenHash]; ok {
		return store.ErrAlreadyExists
	}
	s.sessions[sess.TokenHash] = store.Normalize(sess)
	return nil
}

// lookupLocked returns the live session for key, evicting it if it has
// expired. Callers must hold s.mu.
func (s *Store) lookupLocked(key string, now time.Time) (domain.QRSession, error) {
	sess, ok := s.sessions[key]
	if !ok {
		return domain.QRSession{}, store.ErrNotFound
	}
	if sess.Expired(now) {
		delete(s.sessions, key)
		return domain.QRSession{}, store.ErrExpired
	}
	return sess, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (domain.QRSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(key, now)
}

func (s *Store) MarkAuthenticated(_ context.Context, key string, a domain.Approval, now time.Time, grace time.Duration) (domain.QRSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(key, now)
	if err != nil {
		return domain.QRSession{}, err
	}
	if err := sess.Authenticate(a, now, grace); err != nil {
		return domain.QRSession{}, store.MapTransitionError(err)
	}
	sess = store.Normalize(sess)
	s.sessions[key] = sess
	return sess, nil
}

func (s *Store) Consume(_ context.Context, key string, now time.Time) (domain.QRSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(key, now)
	if err != nil {
		return domain.QRSession{}, err
	}
	if err := sess.Consume(now); err != nil {
		return domain.QRSession{}, store.MapTransitionError(err)
	}
	delete(s.sessions, key)
	return sess, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.sessions, key)
	return nil
}

func (s *Store) Sweep(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Close drops every session.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]domain.QRSession)
	return nil
}
