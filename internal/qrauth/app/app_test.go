package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omnipdf/qrauth/pkg/jwtx"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
	"github.com/omnipdf/qrauth/pkg/slogx"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Env:                 "test",
		Port:                8080,
		ShutdownGracePeriod: time.Second,
		SessionTTL:          5 * time.Minute,
		AuthGrace:           time.Minute,
		SweepInterval:       time.Minute,
		SweepRetention:      time.Minute,
		WatchInterval:       50 * time.Millisecond,
		PayloadBaseURL:      "omnipdf://qr/approve",
		TokenPepper:         "test-pepper",
		StoreDriver:         DriverMemory,
		Issuer:              "http://qrauth.test",
		Audience:            []string{"omnipdf"},
		CredentialTTL:       15 * time.Minute,
		CredentialScopes:    []string{"profile:read"},
		MetricsEnabled:      true,
	}
}

func startApp(t *testing.T, cfg Config) (*Application, *httptest.Server) {
	t.Helper()

	application, err := NewWithLogger(cfg, slogx.Discard())
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, application.Shutdown())
	})
	return application, srv
}

func signBearer(t *testing.T, km *jwtx.KeyManager, issuer, sub string) string {
	t.Helper()
	tok, err := km.Sign(jwtx.NewAccessClaims(sub, "", nil, []string{"pwd"}, time.Hour, issuer, []string{"omnipdf"}, time.Now()))
	require.NoError(t, err)
	return tok
}

func runHandshake(t *testing.T, baseURL, displayBearer, phoneBearer string) *qrsdk.ConsumeResponse {
	t.Helper()
	ctx := context.Background()

	display := qrsdk.NewClient(baseURL, displayBearer)
	phone := qrsdk.NewClient(baseURL, phoneBearer)

	created, err := display.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, phone.Authenticate(ctx, created.Token, ""))

	_, err = display.WaitForApproval(ctx, created.Token, 10*time.Millisecond)
	require.NoError(t, err)

	cred, err := display.Consume(ctx, created.Token)
	require.NoError(t, err)
	return cred
}

func TestApplication_MemoryStore(t *testing.T) {
	t.Parallel()
	application, srv := startApp(t, testConfig(t))

	km := application.keys.Credentials
	cred := runHandshake(t, srv.URL,
		signBearer(t, km, "http://qrauth.test", "desktop-user"),
		signBearer(t, km, "http://qrauth.test", "phone-user"),
	)
	require.Equal(t, "phone-user", cred.UserID)

	// The QR credential is signed with the published keys
	claims, err := km.Verifier.Verify(cred.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.HasAMR(jwtx.AMRQR))

	// ...and cannot itself approve another QR login
	ctx := context.Background()
	created, err := qrsdk.NewClient(srv.URL, signBearer(t, km, "http://qrauth.test", "desktop-user")).Create(ctx)
	require.NoError(t, err)
	err = qrsdk.NewClient(srv.URL, cred.AccessToken).Authenticate(ctx, created.Token, "")
	var apiErr *qrsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestApplication_SQLiteStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.StoreDriver = DriverSQLite
	cfg.SQLiteDSN = "file:" + filepath.Join(dir, "qrauth.db") + "?_pragma=busy_timeout(5000)"
	cfg.SigningKeyFile = filepath.Join(dir, "keys", "signing.pem")

	application, srv := startApp(t, cfg)
	km := application.keys.Credentials
	runHandshake(t, srv.URL,
		signBearer(t, km, cfg.Issuer, "desktop-user"),
		signBearer(t, km, cfg.Issuer, "phone-user"),
	)

	require.FileExists(t, cfg.SigningKeyFile)

	ready, err := qrsdk.NewClient(srv.URL, "").Ready(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
}

func TestApplication_PersistentSigningKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.SigningKeyFile = filepath.Join(t.TempDir(), "signing.pem")

	first, err := InitAuthKeys(cfg, slogx.Discard())
	require.NoError(t, err)
	second, err := InitAuthKeys(cfg, slogx.Discard())
	require.NoError(t, err)

	tok := signBearer(t, first.Credentials, cfg.Issuer, "user-1")
	_, err = second.Bearer.Verify(tok)
	require.NoError(t, err, "a restarted service must accept credentials from before the restart")
}

func TestApplication_RemoteJWKS(t *testing.T) {
	t.Parallel()

	idp, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "https://idp.omnipdf.test"})
	require.NoError(t, err)
	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(mustJSON(t, idp.KeySet.PublicJWKS()))
	}))
	defer jwksSrv.Close()

	cfg := testConfig(t)
	cfg.Issuer = "https://idp.omnipdf.test"
	cfg.JWKSURL = jwksSrv.URL
	cfg.JWKSRefresh = time.Hour

	application, srv := startApp(t, cfg)
	require.NotNil(t, application.keys.Refresher)

	cred := runHandshake(t, srv.URL,
		signBearer(t, idp, cfg.Issuer, "desktop-user"),
		signBearer(t, idp, cfg.Issuer, "phone-user"),
	)
	require.Equal(t, "phone-user", cred.UserID)

	// Tokens signed by the service itself are not IdP tokens
	_, err = qrsdk.NewClient(srv.URL, signBearer(t, application.keys.Credentials, cfg.Issuer, "x")).Create(context.Background())
	require.ErrorIs(t, err, qrsdk.ErrUnauthorized)
}

func TestApplication_RemoteJWKSUnavailable(t *testing.T) {
	t.Parallel()

	jwksSrv := httptest.NewServer(http.NotFoundHandler())
	defer jwksSrv.Close()

	cfg := testConfig(t)
	cfg.JWKSURL = jwksSrv.URL

	application, err := NewWithLogger(cfg, slogx.Discard())
	require.NoError(t, err)
	require.Error(t, application.Start(context.Background()))
	require.NoError(t, application.Shutdown())
}

func TestApplication_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.StoreDriver = DriverPostgres
	_, err := NewWithLogger(cfg, slogx.Discard())
	require.ErrorContains(t, err, "QR_POSTGRES_DSN")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
