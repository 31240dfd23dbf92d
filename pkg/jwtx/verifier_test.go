package jwtx_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/omnipdf/qrauth/pkg/cryptox"
	"github.com/omnipdf/qrauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const exampleIssuer = "https://id.omnipdf.test"

func newEdDSASigner(t *testing.T, kid string) *jwtx.EdDSASigner {
	t.Helper()
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
	require.NoError(t, err)
	return signer
}

func TestEdDSASignAndVerify(t *testing.T) {
	signer := newEdDSASigner(t, "test-key-eddsa")
	require.NoError(t, signer.Validate())
	require.Equal(t, "EdDSA", signer.Alg())

	now := time.Now().UTC()
	token, err := signer.Sign(jwtx.NewAccessClaims("user-456", "qr-1", []string{"profile:read"},
		[]string{jwtx.AMRQR}, 5*time.Minute, exampleIssuer, []string{"omnipdf"}, now))
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	jwks := keyset.PublicJWKS()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)
	require.Equal(t, "Ed25519", jwks.Keys[0].Crv)

	verifier := jwtx.NewKeySetVerifier(keyset, jwtx.VerifyOptions{Issuer: exampleIssuer, Audience: []string{"omnipdf"}})
	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-456", claims.Subject)
	require.Equal(t, "qr-1", claims.SID)
	require.True(t, claims.HasAMR(jwtx.AMRQR))
}

func TestVerify_Rejections(t *testing.T) {
	signer := newEdDSASigner(t, "k1")
	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	now := time.Now().UTC()
	sign := func(c jwtx.Claims) string {
		tok, err := signer.Sign(c)
		require.NoError(t, err)
		return tok
	}
	verifier := jwtx.NewKeySetVerifier(keyset, jwtx.VerifyOptions{Issuer: exampleIssuer, Audience: []string{"omnipdf"}})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := verifier.Verify(sign(jwtx.NewAccessClaims("u", "", nil, nil, time.Minute, "other", []string{"omnipdf"}, now)))
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := verifier.Verify(sign(jwtx.NewAccessClaims("u", "", nil, nil, time.Minute, exampleIssuer, []string{"billing"}, now)))
		require.ErrorIs(t, err, jwtx.ErrAudience)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := verifier.Verify(sign(jwtx.NewAccessClaims("u", "", nil, nil, time.Minute, exampleIssuer, []string{"omnipdf"}, now.Add(-time.Hour))))
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := verifier.Verify(sign(jwtx.NewAccessClaims("", "", nil, nil, time.Minute, exampleIssuer, []string{"omnipdf"}, now)))
		require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
	})

	t.Run("unknown kid", func(t *testing.T) {
		stranger := newEdDSASigner(t, "k2")
		tok, err := stranger.Sign(jwtx.NewAccessClaims("u", "", nil, nil, time.Minute, exampleIssuer, []string{"omnipdf"}, now))
		require.NoError(t, err)
		_, err = verifier.Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("tampered", func(t *testing.T) {
		tok := sign(jwtx.NewAccessClaims("u", "", nil, nil, time.Minute, exampleIssuer, []string{"omnipdf"}, now))
		_, err := verifier.Verify(tok[:len(tok)-4] + "AAAA")
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.Verify("not-a-jwt")
		require.Error(t, err)
	})
}

func TestVerify_UpstreamES256(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pad := func(b []byte) string {
		out := make([]byte, 32)
		copy(out[32-len(b):], b)
		return base64.RawURLEncoding.EncodeToString(out)
	}

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.ResetFromJWKS(jwtx.JWKS{Keys: []jwtx.JWK{{
		Kty: "EC", Use: "sig", Alg: "ES256", Kid: "idp-1", Crv: "P-256",
		X: pad(priv.X.Bytes()), Y: pad(priv.Y.Bytes()),
	}}}))

	claims := jwtx.NewAccessClaims("idp-user", "", nil, []string{"pwd"}, time.Minute, exampleIssuer, nil, time.Now().UTC())
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = "idp-1"
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)

	verifier := jwtx.NewKeySetVerifier(keyset, jwtx.VerifyOptions{Issuer: exampleIssuer})
	got, err := verifier.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "idp-user", got.Subject)

	// An EdDSA token must not validate against the EC key registered under the same kid
	edSigner := newEdDSASigner(t, "idp-1")
	forged, err := edSigner.Sign(claims)
	require.NoError(t, err)
	_, err = verifier.Verify(forged)
	require.Error(t, err)
}

func TestKeySet_ResetFromJWKS(t *testing.T) {
	keyset := jwtx.NewKeySet()
	require.False(t, keyset.IsReady())

	signer := newEdDSASigner(t, "k1")
	require.NoError(t, keyset.ResetFromJWKS(jwtx.JWKS{Keys: []jwtx.JWK{
		signer.PublicJWK(),
		{Kty: "oct", Kid: "symmetric"},
		{Kty: "OKP", Crv: "Ed25519", Kid: "enc", Use: "enc", X: signer.PublicJWK().X},
	}}))
	require.True(t, keyset.IsReady())
	require.Len(t, keyset.PublicJWKS().Keys, 1)

	_, err := keyset.Get("symmetric")
	require.ErrorIs(t, err, jwtx.ErrNoKey)

	err = keyset.ResetFromJWKS(jwtx.JWKS{Keys: []jwtx.JWK{{Kty: "oct", Kid: "x"}}})
	require.Error(t, err)
	require.True(t, keyset.IsReady(), "failed reset keeps previous keys")
}
