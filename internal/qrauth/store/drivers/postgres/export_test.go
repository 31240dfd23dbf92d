package postgres

import "context"

// Truncate empties the sessions table between conformance subtests.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE qr_sessions`)
	return err
}
