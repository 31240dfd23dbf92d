package http

import (
	"net/http"
	"strings"

	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/pkg/httpx"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

type QRConsumeHandler struct {
	QRService *service.QRService
}

// ServeHTTP godoc
//
//	@Summary		Redeem QR Session
//	@Description	Exchange an approved session for an access token of the approving user. Only the session owner may redeem it, and only once.
//	@Tags			QR
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		qrsdk.TokenRequest		true	"token"
//	@Success		200		{object}	qrsdk.ConsumeResponse	"access_token, token_type, expires_in, session_id, user_id"
//	@Failure		400		{object}	qrsdk.ErrorResponse		"error, error_description"
//	@Failure		401		{object}	qrsdk.ErrorResponse		"error, error_description"
//	@Failure		404		{object}	qrsdk.ErrorResponse		"qr_code_not_found"
//	@Failure		409		{object}	qrsdk.ErrorResponse		"qr_code_not_authenticated"
//	@Failure		410		{object}	qrsdk.ErrorResponse		"QR_CODE_EXPIRED"
//	@Router			/v1/qr/consume [post].
func (h *QRConsumeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req qrsdk.TokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	res, err := h.QRService.Consume(ctx, req.Token, httpx.UserIDFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	cred := res.Credential
	httpx.WriteJSON(w, http.StatusOK, qrsdk.ConsumeResponse{
		AccessToken: cred.AccessToken,
		TokenType:   cred.TokenType,
		ExpiresIn:   cred.ExpiresIn,
		Scope:       strings.Join(cred.Scopes, " "),
		SessionID:   cred.SessionID,
		UserID:      cred.Subject,
	})
}
