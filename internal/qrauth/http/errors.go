package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
	"github.com/omnipdf/qrauth/pkg/slogx"
)

// apiError maps a service error onto the wire error the SDK understands.
// Unknown errors become a 500 and are logged, their text is not returned.
func apiError(r *http.Request, err error) *qrsdk.APIError {
	switch {
	case errors.Is(err, service.ErrBadRequest):
		return qrsdk.ErrInvalidRequest.WithDescription("token is required")
	case errors.Is(err, service.ErrUnauthorized):
		return qrsdk.ErrUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return qrsdk.ErrNotFound
	case errors.Is(err, service.ErrExpired):
		return qrsdk.ErrExpired
	case errors.Is(err, service.ErrAlreadyAuthenticated):
		return qrsdk.ErrAlreadyAuthenticated
	case errors.Is(err, service.ErrNotAuthenticated):
		return qrsdk.ErrNotAuthenticated
	default:
		slogx.FromContext(r.Context()).Error("qr request failed",
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
		return qrsdk.ErrServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	apiError(r, err).WriteError(w)
}
