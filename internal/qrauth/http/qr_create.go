package http

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/http"
	"net/url"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"

	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/pkg/cryptox"
	"github.com/omnipdf/qrauth/pkg/httpx"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
	"github.com/omnipdf/qrauth/pkg/slogx"
)

const (
	// DefaultPayloadBaseURL is the deep link the mobile app registers for.
	DefaultPayloadBaseURL = "omnipdf://qr/approve"

	qrImageSize = 256
)

type QRCreateHandler struct {
	QRService      *service.QRService
	PayloadBaseURL string
}

// ServeHTTP godoc
//
//	@Summary		Create QR Session
//	@Description	Start a QR login for the calling user. The response token must stay on the displaying device; it is also embedded in qrPayload for the approver to scan.
//	@Tags			QR
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	qrsdk.CreateResponse	"id, token, displayCode, expiresAt, qrPayload, qrImage"
//	@Failure		401	{object}	qrsdk.ErrorResponse		"error, error_description"
//	@Failure		429	{object}	qrsdk.ErrorResponse		"error, error_description"
//	@Failure		500	{object}	qrsdk.ErrorResponse		"error, error_description"
//	@Router			/v1/qr/create [post].
func (h *QRCreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := httpx.UserIDFromContext(ctx)
	created, err := h.QRService.Create(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	payload := QRPayload(h.PayloadBaseURL, created.Token)
	image, err := RenderQRImage(payload)
	if err != nil {
		// The session is still usable through the payload, so only log.
		slogx.FromContext(ctx).Warn("failed to render qr image", "session_id", created.Session.ID, "err", err)
	}

	httpx.WriteJSON(w, http.StatusOK, qrsdk.CreateResponse{
		ID:          created.Session.ID,
		Token:       created.Token,
		DisplayCode: cryptox.FormatDisplayCode(created.Session.DisplayCode),
		ExpiresAt:   created.Session.ExpiresAt,
		QRPayload:   payload,
		QRImage:     image,
	})
}

// QRPayload builds the string encoded in the QR code.
func QRPayload(base, token string) string {
	if base == "" {
		base = DefaultPayloadBaseURL
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

// RenderQRImage encodes payload as a PNG QR code and returns it as a data URI.
func RenderQRImage(payload string) (string, error) {
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	code, err = barcode.Scale(code, qrImageSize, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
