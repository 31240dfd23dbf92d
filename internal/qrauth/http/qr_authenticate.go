package http

import (
	"net/http"

	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/pkg/httpx"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

type QRAuthenticateHandler struct {
	QRService *service.QRService
}

// ServeHTTP godoc
//
//	@Summary		Approve QR Session
//	@Description	Called by a signed-in device after scanning a QR code. Binds the caller's identity to the session and extends its expiry by the approval grace period.
//	@Tags			QR
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		qrsdk.AuthenticateRequest	true	"token, deviceToken"
//	@Success		200		{object}	qrsdk.AuthenticateResponse	"success"
//	@Failure		400		{object}	qrsdk.ErrorResponse			"error, error_description"
//	@Failure		401		{object}	qrsdk.ErrorResponse			"error, error_description"
//	@Failure		403		{object}	qrsdk.ErrorResponse			"credential came from a QR login"
//	@Failure		404		{object}	qrsdk.ErrorResponse			"qr_code_not_found"
//	@Failure		409		{object}	qrsdk.ErrorResponse			"qr_code_already_authenticated"
//	@Failure		410		{object}	qrsdk.ErrorResponse			"QR_CODE_EXPIRED"
//	@Router			/v1/qr/authenticate [post].
func (h *QRAuthenticateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req qrsdk.AuthenticateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	approver := httpx.UserIDFromContext(ctx)
	if _, err := h.QRService.Authenticate(ctx, req.Token, approver, req.DeviceToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, qrsdk.AuthenticateResponse{Success: true})
}
