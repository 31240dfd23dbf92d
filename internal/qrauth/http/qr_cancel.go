package http

import (
	"net/http"

	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/pkg/httpx"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

type QRCancelHandler struct {
	QRService *service.QRService
}

// ServeHTTP godoc
//
//	@Summary		Cancel QR Session
//	@Description	The owner abandons a session, e.g. when the QR dialog is closed.
//	@Tags			QR
//	@Accept			json
//	@Security		BearerAuth
//	@Param			request	body	qrsdk.TokenRequest	true	"token"
//	@Success		204
//	@Failure		400	{object}	qrsdk.ErrorResponse	"error, error_description"
//	@Failure		401	{object}	qrsdk.ErrorResponse	"error, error_description"
//	@Failure		404	{object}	qrsdk.ErrorResponse	"qr_code_not_found"
//	@Router			/v1/qr/cancel [post].
func (h *QRCancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req qrsdk.TokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.QRService.Cancel(ctx, req.Token, httpx.UserIDFromContext(ctx)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
