package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/store"
)

const (
	DefaultSweepInterval  = 30 * time.Second
	DefaultSweepRetention = time.Minute
)

// Sweeper periodically deletes expired QR sessions so abandoned codes do not
// pile up in the store. Sessions are kept for Retention past their expiry so
// a client still polling gets QR_CODE_EXPIRED rather than not found.
type Sweeper struct {
	Store     store.Sessions
	Logger    *slog.Logger
	Metrics   Metrics
	Interval  time.Duration
	Retention time.Duration
	Now       func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a sweeper. Non-positive durations fall back to the
// defaults.
func NewSweeper(sessions store.Sessions, logger *slog.Logger, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention < 0 {
		retention = DefaultSweepRetention
	}

	return &Sweeper{
		Store:     sessions,
		Logger:    logger,
		Metrics:   nopMetrics{},
		Interval:  interval,
		Retention: retention,
		Now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background loop. It sweeps once immediately. The loop
// ends on Stop or when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
	s.Logger.Info("qr session sweeper started", "interval", s.Interval, "retention", s.Retention)
}

// Stop shuts the loop down and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("qr session sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.Logger.Error("qr session sweep failed", "error", err)
	}
}

// Sweep performs a single pass and returns how many sessions were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Interval)
	defer cancel()

	cutoff := s.Now().UTC().Add(-s.Retention)
	n, err := s.Store.Sweep(ctx, cutoff)
	if err != nil {
		return n, err
	}

	if s.Metrics != nil {
		s.Metrics.SessionsSwept(n)
	}
	if n > 0 {
		s.Logger.Info("swept expired qr sessions", "removed", n, "cutoff", cutoff)
	} else {
		s.Logger.Debug("no expired qr sessions to sweep")
	}
	return n, nil
}
