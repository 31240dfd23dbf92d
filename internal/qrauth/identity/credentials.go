// Package identity is the boundary with the identity provider: it verifies
// the bearer tokens devices present and mints the login credential handed
// to an owner device when it consumes an approved QR session.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/pkg/jwtx"
	"github.com/omnipdf/qrauth/pkg/slogx"
)

var ErrNoApprover = errors.New("identity: session has no approver")

// Credential is the login result delivered to the owner device.
type Credential struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int // seconds
	ExpiresAt   time.Time
	Subject     string
	SessionID   string
	Scopes      []string
}

// CredentialIssuer signs short-lived access tokens for consumed sessions.
type CredentialIssuer struct {
	Keys     *jwtx.KeyManager
	Issuer   string
	Audience []string
	TTL      time.Duration
	Scopes   []string
}

// Issue mints a credential for the approver of sess. The session id becomes
// the sid claim and amr is ["qr"], so relying parties can tell a QR login
// apart from a password one.
func (c *CredentialIssuer) Issue(ctx context.Context, sess domain.QRSession, now time.Time) (Credential, error) {
	if sess.ApproverUserID == "" {
		return Credential{}, ErrNoApprover
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}

	claims := jwtx.NewAccessClaims(
		sess.ApproverUserID, sess.ID,
		c.Scopes, []string{jwtx.AMRQR},
		ttl, c.Issuer, c.Audience, now,
	)
	token, err := c.Keys.Sign(claims)
	if err != nil {
		return Credential{}, fmt.Errorf("identity: sign credential: %w", err)
	}

	slogx.FromContext(ctx).Debug("issued qr credential",
		"session_id", sess.ID,
		"user_id", sess.ApproverUserID,
		"jti", claims.ID,
	)

	return Credential{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		ExpiresAt:   now.Add(ttl).UTC(),
		Subject:     sess.ApproverUserID,
		SessionID:   sess.ID,
		Scopes:      c.Scopes,
	}, nil
}
