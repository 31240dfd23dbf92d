package app

import (
	"fmt"
	"log/slog"

	"github.com/omnipdf/qrauth/internal/qrauth/identity"
	"github.com/omnipdf/qrauth/pkg/cryptox"
	"github.com/omnipdf/qrauth/pkg/jwtx"
)

// AuthKeys bundles the two key sets the service works with: the keys it
// signs consume credentials with, and the keys it verifies caller bearer
// tokens against.
type AuthKeys struct {
	Credentials *jwtx.KeyManager
	Bearer      jwtx.Verifier

	// Refresher is set when bearer keys come from a remote JWKS. It is not
	// started yet.
	Refresher *identity.JWKSRefresher
}

// InitAuthKeys loads or generates the credential signing key and sets up
// bearer verification.
//
// Signing key modes:
//   - AUTH_SIGNING_KEY_FILE empty: an ephemeral Ed25519 key. Credentials
//     issued before a restart stop verifying.
//   - AUTH_SIGNING_KEY_FILE set: the PEM key at that path, generated and
//     written on first start.
//
// Bearer verification uses the remote JWKS at AUTH_JWKS_URL when set and
// otherwise trusts the service's own signing keys, which is what local
// development and the e2e suite rely on.
func InitAuthKeys(cfg Config, logger *slog.Logger) (*AuthKeys, error) {
	opts := jwtx.KeyManagerOptions{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
	}

	if cfg.SigningKeyFile != "" {
		pemKey, err := cryptox.LoadOrGenerateEd25519Key(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
		opts.PEMKeys = [][]byte{pemKey}
		logger.Info("loaded persistent signing key", "path", cfg.SigningKeyFile)
	}

	km, err := jwtx.NewKeyManager(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}
	if cfg.SigningKeyFile == "" {
		logger.Warn("using an ephemeral signing key, issued credentials will not survive a restart")
	}

	keys := &AuthKeys{Credentials: km}

	if cfg.JWKSURL == "" {
		keys.Bearer = identity.NewBearerVerifier(km.KeySet, cfg.Issuer, cfg.Audience)
		logger.Info("bearer tokens verified against local signing keys", "issuer", cfg.Issuer)
		return keys, nil
	}

	remote := jwtx.NewKeySet()
	keys.Bearer = identity.NewBearerVerifier(remote, cfg.Issuer, cfg.Audience)
	keys.Refresher = identity.NewJWKSRefresher(cfg.JWKSURL, remote, cfg.JWKSRefresh, logger)
	logger.Info("bearer tokens verified against identity provider", "jwks_url", cfg.JWKSURL, "issuer", cfg.Issuer)
	return keys, nil
}
