package jwtx_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omnipdf/qrauth/pkg/cryptox"
	"github.com/omnipdf/qrauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewKeyManager_Ephemeral(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, NumKeys: 3})
	require.NoError(t, err)
	require.True(t, km.IsReady())
	require.Equal(t, 3, km.NumSigners())
	require.Len(t, km.KeySet.PublicJWKS().Keys, 3)

	for _, k := range km.KeySet.PublicJWKS().Keys {
		require.True(t, strings.HasPrefix(k.Kid, "qrauth-"))
	}

	token, err := km.Sign(jwtx.NewAccessClaims("u1", "s1", nil, nil, time.Minute, exampleIssuer, nil, time.Now().UTC()))
	require.NoError(t, err)

	claims, err := km.Verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
}

func TestNewKeyManager_Bounds(t *testing.T) {
	_, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{})
	require.Error(t, err, "issuer is required")

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, NumKeys: 0})
	require.NoError(t, err)
	require.Equal(t, 1, km.NumSigners())

	km, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, NumKeys: 50})
	require.NoError(t, err)
	require.Equal(t, 5, km.NumSigners())
}

func TestNewKeyManager_PEMKeysStableKID(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	a, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, PEMKeys: [][]byte{pemKey}})
	require.NoError(t, err)
	b, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, PEMKeys: [][]byte{pemKey}})
	require.NoError(t, err)

	// Two replicas loading the same key publish the same kid and accept each other's tokens
	require.Equal(t, a.GetSigner().KID(), b.GetSigner().KID())

	token, err := a.Sign(jwtx.NewAccessClaims("u1", "", nil, nil, time.Minute, exampleIssuer, nil, time.Now().UTC()))
	require.NoError(t, err)
	_, err = b.Verifier.Verify(token)
	require.NoError(t, err)

	_, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer, PEMKeys: [][]byte{[]byte("junk")}})
	require.Error(t, err)
}

func TestFetchJWKS(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: exampleIssuer})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(km.KeySet.PublicJWKS())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jwks, err := jwtx.FetchJWKS(ctx, srv.Client(), srv.URL+"/.well-known/jwks.json")
	require.NoError(t, err)
	require.Equal(t, km.KeySet.PublicJWKS(), jwks)

	_, err = jwtx.FetchJWKS(ctx, srv.Client(), srv.URL+"/missing")
	require.Error(t, err)
}
