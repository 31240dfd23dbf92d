package qrsdk

import (
	"time"

	"github.com/omnipdf/qrauth/pkg/jwtx"
)

// ============================================================================
// Error and Health Types
// ============================================================================

// ErrorResponse is the JSON body of every error returned by the service.
type ErrorResponse struct {
	// Error is the machine readable code, e.g. "QR_CODE_EXPIRED"
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks lists the state of each dependency checked by /readyz.
type HealthChecks struct {
	Store  string `json:"store"`
	Signer string `json:"signer"`
}

// JWKSResponse is the public key set used to verify credentials issued by
// Consume.
type JWKSResponse = jwtx.JWKS

// ============================================================================
// QR Handshake Types
// ============================================================================

// CreateResponse is returned to the owner device by POST /v1/qr/create.
type CreateResponse struct {
	// ID is the public session identifier
	ID string `json:"id"`

	// Token is the bearer capability encoded in the QR code. It is only
	// ever returned here.
	Token string `json:"token"`

	// DisplayCode is shown next to the QR code so the approver can confirm
	// they scanned the right screen, e.g. "BCDF-GHJK"
	DisplayCode string `json:"displayCode"`

	ExpiresAt time.Time `json:"expiresAt"`

	// QRPayload is the URL to encode in the QR code
	QRPayload string `json:"qrPayload"`

	// QRImage is a data:image/png;base64 rendering of QRPayload
	QRImage string `json:"qrImage,omitempty"`
}

// AuthenticateRequest is sent by the approver device after scanning.
type AuthenticateRequest struct {
	Token       string `json:"token" validate:"required,max=128"`
	DeviceToken string `json:"deviceToken,omitempty" validate:"omitempty,max=512"`
}

// AuthenticateResponse acknowledges an approval.
type AuthenticateResponse struct {
	Success bool `json:"success"`
}

// VerifyResponse is the polling view of a session.
type VerifyResponse struct {
	Authenticated bool      `json:"authenticated"`
	State         string    `json:"state"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// TokenRequest carries a QR token in a request body (consume, cancel).
type TokenRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// ConsumeResponse carries the login credential for the owner device.
type ConsumeResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
}

// Watch event types.
const (
	EventStatus  = "status"
	EventExpired = "expired"
	EventClosed  = "closed"
)

// WatchEvent is a frame pushed over GET /v1/qr/watch.
type WatchEvent struct {
	Type          string    `json:"type"`
	Authenticated bool      `json:"authenticated"`
	State         string    `json:"state,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitzero"`
	Error         string    `json:"error,omitempty"`
}
