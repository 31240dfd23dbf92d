package qrauth_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/omnipdf/qrauth/pkg/cryptox"
	"github.com/omnipdf/qrauth/pkg/jwtx"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

/*
 * Common constants and helper functions for QR login end-to-end tests.
 * The service runs from its Docker image; bearer tokens are signed locally
 * with the same key the container loads from AUTH_SIGNING_KEY_FILE.
 */

const (
	testImageName = "omnipdf-qrauth-test:latest"

	testIssuer     = "http://qrauth.e2e"
	testAudience   = "omnipdf"
	testPepper     = "e2e-shared-pepper"
	containerKey   = "/keys/signing.pem"
	containerPort  = "8080/tcp"
	redisImageName = "redis:7-alpine"
)

// TestMain builds the Docker image once before all tests and removes it
// afterwards. Nothing runs in -short mode.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Fprintln(os.Stdout, "skipping e2e tests in short mode")
		os.Exit(0)
	}

	fmt.Fprintf(os.Stdout, "Building QR auth Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up QR auth Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/qrauth/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	_ = exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName).Run()
}

// signingKey writes a fresh Ed25519 key for the container and returns a
// KeyManager holding the same key, for minting caller bearers.
func signingKey(t *testing.T) (string, *jwtx.KeyManager) {
	t.Helper()

	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, pemKey, 0o600))

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Issuer:   testIssuer,
		Audience: []string{testAudience},
		PEMKeys:  [][]byte{pemKey},
	})
	require.NoError(t, err)
	return path, km
}

func baseEnv() map[string]string {
	return map[string]string{
		"ENV":                   "test",
		"LOG_LEVEL":             "info",
		"LOG_FORMAT":            "json",
		"AUTH_ISSUER":           testIssuer,
		"AUTH_AUDIENCE":         testAudience,
		"AUTH_SIGNING_KEY_FILE": containerKey,
		"QR_TOKEN_PEPPER":       testPepper,
		"QR_WATCH_INTERVAL":     "100ms",
		// Tests make many rapid requests from one IP
		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
}

type serviceOptions struct {
	env      map[string]string
	networks []string
}

// setupQRContainer starts the service and returns its base URL.
func setupQRContainer(t *testing.T, keyPath string, opts serviceOptions) string {
	t.Helper()
	ctx := context.Background()

	env := baseEnv()
	for k, v := range opts.env {
		env[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{containerPort},
			Env:          env,
			Networks:     opts.networks,
			Files: []testcontainers.ContainerFile{{
				HostFilePath:      keyPath,
				ContainerFilePath: containerKey,
				FileMode:          0o644,
			}},
			WaitingFor: wait.ForHTTP("/readyz").
				WithPort(containerPort).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// setupRedis starts redis on a fresh network and returns the network name
// and the URL services on that network reach it at.
func setupRedis(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()

	nw, err := network.New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nw.Remove(ctx) })

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          redisImageName,
			Networks:       []string{nw.Name},
			NetworkAliases: map[string][]string{nw.Name: {"redis"}},
			WaitingFor:     wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis: %v", err)
		}
	})

	return nw.Name, "redis://redis:6379/0"
}

// userClient returns an SDK client authenticated as sub with a password
// login bearer.
func userClient(t *testing.T, baseURL string, km *jwtx.KeyManager, sub string) *qrsdk.Client {
	t.Helper()
	claims := jwtx.NewAccessClaims(sub, "", []string{"profile:read"}, []string{"pwd"},
		time.Hour, testIssuer, []string{testAudience}, time.Now())
	tok, err := km.Sign(claims)
	require.NoError(t, err)
	return qrsdk.NewClient(baseURL, tok)
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *qrsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
