package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/omnipdf/qrauth/pkg/jwtx"
)

// DefaultLeeway tolerates clock skew between devices, the identity provider
// and this service.
const DefaultLeeway = 30 * time.Second

// NewBearerVerifier verifies device bearer tokens against keys.
func NewBearerVerifier(keys *jwtx.KeySet, issuer string, audience []string) jwtx.Verifier {
	return jwtx.NewKeySetVerifier(keys, jwtx.VerifyOptions{
		Issuer:   issuer,
		Audience: audience,
		Leeway:   DefaultLeeway,
	})
}

// JWKSRefresher keeps a KeySet in sync with the identity provider's JWKS
// endpoint.
type JWKSRefresher struct {
	URL      string
	Client   *http.Client
	Keys     *jwtx.KeySet
	Interval time.Duration
	Logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewJWKSRefresher returns a refresher polling url every interval (default 5m).
func NewJWKSRefresher(url string, keys *jwtx.KeySet, interval time.Duration, logger *slog.Logger) *JWKSRefresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &JWKSRefresher{
		URL:      url,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Keys:     keys,
		Interval: interval,
		Logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Refresh fetches the JWKS once and replaces the key set. On failure the
// previous keys stay in place.
func (r *JWKSRefresher) Refresh(ctx context.Context) error {
	jwks, err := jwtx.FetchJWKS(ctx, r.Client, r.URL)
	if err != nil {
		return fmt.Errorf("identity: fetch jwks: %w", err)
	}
	if err := r.Keys.ResetFromJWKS(jwks); err != nil {
		return fmt.Errorf("identity: load jwks: %w", err)
	}
	return nil
}

// Start performs a first refresh synchronously, so the service never starts
// without keys, then keeps refreshing in the background until Stop.
func (r *JWKSRefresher) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		return err
	}
	r.Logger.Info("identity provider keys loaded", "url", r.URL, "keys", len(r.Keys.PublicJWKS().Keys))

	go r.run()
	return nil
}

// Stop ends the background loop and waits for it.
func (r *JWKSRefresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *JWKSRefresher) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.Interval)
			if err := r.Refresh(ctx); err != nil {
				r.Logger.Warn("identity provider key refresh failed, keeping previous keys", "url", r.URL, "error", err)
			}
			cancel()
		case <-r.stopCh:
			return
		}
	}
}
