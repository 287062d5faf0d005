// ABOUTME: Tests for Gateway construction, probes, routing, and lifecycle
// ABOUTME: Runs the real router over a temp-dir SQLite store through httptest

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/prachand/internal/auth"
	"github.com/2389/prachand/internal/config"
	"github.com/2389/prachand/internal/protocol"
	"github.com/2389/prachand/internal/store"
)

// testConfig creates a config backed by a fresh SQLite file.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "prachand.db")
	cfg.Database.MaxConnections = 4
	cfg.Metrics.Enabled = true
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv is a running gateway plus a controller allowed to use it.
type testEnv struct {
	gw              *Gateway
	srv             *httptest.Server
	cfg             *config.Config
	controllerToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig(t))
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	gw, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = gw.Store().Close()
	})

	env := &testEnv{gw: gw, srv: srv, cfg: cfg}
	env.controllerToken = env.addController(t, "ops")
	return env
}

// addController inserts a controller and returns a token for it.
func (e *testEnv) addController(t *testing.T, name string) string {
	t.Helper()
	ctx := context.Background()

	key, err := auth.GenerateKey()
	require.NoError(t, err)

	sess, err := e.gw.Store().Acquire(ctx)
	require.NoError(t, err)
	defer sess.Release()
	require.NoError(t, sess.AddController(ctx, &store.Controller{ControllerIdentifier: name, ControllerKey: key}))

	token, err := e.gw.Issuer().Issue(auth.ControllerPrincipal{ControllerIdentifier: name}, key)
	require.NoError(t, err)
	return token
}

// post sends body as JSON with an optional token and returns status and body.
func (e *testEnv) post(t *testing.T, path, token string, body any) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	case nil:
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := e.srv.Client().Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

// enroll enrolls hostIdentifier and returns its token.
func (e *testEnv) enroll(t *testing.T, hostIdentifier string) string {
	t.Helper()
	status, body := e.post(t, protocol.PathEnroll, "", map[string]any{
		"host_identifier": hostIdentifier,
		"host_details":    map[string]any{},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var resp protocol.EnrollResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHello(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.get(t, protocol.PathHello)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello world!", body)
}

func TestHealthProbes(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, body = env.get(t, "/health/ready")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "ready (4/4 connections idle)")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, protocol.PathHello)

	status, body := env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "prachand_http_requests_total")
	assert.Contains(t, body, "prachand_pool_connections")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	env := newTestEnvWithConfig(t, cfg)

	status, _ := env.get(t, "/metrics")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.srv.Client().Get(env.srv.URL + protocol.PathHello)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+protocol.PathHello, nil)
	req.Header.Set(RequestIDHeader, "trace-123")
	resp, err = env.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get(RequestIDHeader))
}

func TestMethodMismatch(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.get(t, protocol.PathGetCommand)
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, _ = env.post(t, protocol.PathHello, "", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestRecoverMiddleware(t *testing.T) {
	gw := &Gateway{logger: testLogger()}
	h := gw.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/get_command", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Request failed due to server error."}`, rec.Body.String())
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + protocol.PathHello
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.TrimSpace(string(body)) == protocol.HelloMessage
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not shut down")
	}

	// The store is closed with the server
	assert.Error(t, gw.Store().Ping(context.Background()))
}
