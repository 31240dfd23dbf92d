package http

import (
	"net/http"

	"github.com/omnipdf/qrauth/pkg/httpx"
	"github.com/omnipdf/qrauth/pkg/jwtx"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

// JWKSHandler exposes the keys that verify credentials minted by consume.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify credentials issued for consumed QR sessions.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	qrsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, qrsdk.JWKSResponse(keys.PublicJWKS()))
	}
}
