package http

import (
	"net/http"

	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/pkg/httpx"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

type QRVerifyHandler struct {
	QRService *service.QRService
}

// ServeHTTP godoc
//
//	@Summary		Poll QR Session
//	@Description	Read-only status check polled by the displaying device. The token is the capability, no bearer is needed. Never reports authenticated for an expired session.
//	@Tags			QR
//	@Produce		json
//	@Param			token	query		string					true	"Session token from create"
//	@Success		200		{object}	qrsdk.VerifyResponse	"authenticated, state, expiresAt"
//	@Failure		400		{object}	qrsdk.ErrorResponse		"error, error_description"
//	@Failure		404		{object}	qrsdk.ErrorResponse		"qr_code_not_found"
//	@Failure		410		{object}	qrsdk.ErrorResponse		"QR_CODE_EXPIRED"
//	@Router			/v1/qr/verify [get].
func (h *QRVerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, err := h.QRService.Verify(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse(status))
}

func verifyResponse(s service.Status) qrsdk.VerifyResponse {
	return qrsdk.VerifyResponse{
		Authenticated: s.Authenticated,
		State:         string(s.State),
		ExpiresAt:     s.ExpiresAt,
	}
}
