package qrsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/omnipdf/qrauth/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeNotFound             = "qr_code_not_found"
	ErrorCodeExpired              = "QR_CODE_EXPIRED"
	ErrorCodeAlreadyAuthenticated = "qr_code_already_authenticated"
	ErrorCodeNotAuthenticated     = "qr_code_not_authenticated"
	ErrorCodeInsufficientUserAuth = "insufficient_user_authentication"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrorCodeServerError          = "server_error"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is an error response from the service. The server writes these
// with WriteError and the client parses them back, so both sides agree on
// codes and status.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the error code, e.g. "QR_CODE_EXPIRED"
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on status and code, so errors.Is(err, qrsdk.ErrExpired) holds
// for any expired response regardless of its description.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.StatusCode == e.StatusCode && t.Code == e.Code
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	return &APIError{StatusCode: e.StatusCode, Code: e.Code, Description: desc}
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	// ErrInvalidRequest is returned for malformed bodies or a missing token.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrUnauthorized is returned when the bearer token is missing or invalid.
	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid or expired",
	}

	// ErrNotFound is returned for unknown, consumed or cancelled sessions.
	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "qr code not found",
	}

	// ErrExpired is returned once a session is past its expiry.
	ErrExpired = &APIError{
		StatusCode:  http.StatusGone,
		Code:        ErrorCodeExpired,
		Description: "qr code expired",
	}

	// ErrAlreadyAuthenticated is returned when a session is approved twice.
	ErrAlreadyAuthenticated = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyAuthenticated,
		Description: "qr code has already been approved",
	}

	// ErrNotAuthenticated is returned when consuming a session nobody approved yet.
	ErrNotAuthenticated = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeNotAuthenticated,
		Description: "qr code has not been approved yet",
	}

	// ErrServerError is returned when the service hit an unexpected condition.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
