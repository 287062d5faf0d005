// ABOUTME: Tests for the prachand-server HTTP client
// ABOUTME: Covers retries, error mapping, token handling, and a round trip against the real gateway

package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/prachand/internal/auth"
	"github.com/2389/prachand/internal/config"
	"github.com/2389/prachand/internal/gateway"
	"github.com/2389/prachand/internal/protocol"
	"github.com/2389/prachand/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RejectsBadURLs(t *testing.T) {
	for _, u := range []string{"", "localhost:1234", "ftp://example.com", "://"} {
		_, err := New(u)
		assert.Error(t, err, "url %q", u)
	}

	c, err := New("http://127.0.0.1:1234/")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1234", c.baseURL)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"Request failed due to database error."}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":42}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetry(5, time.Millisecond), WithLogger(testLogger()))
	require.NoError(t, err)

	raw, err := c.post(context.Background(), protocol.PathListNodes, protocol.ListNodesRequest{}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42}`, string(raw))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetry(3, time.Millisecond), WithLogger(testLogger()))
	require.NoError(t, err)

	_, err = c.ListNodes(context.Background(), protocol.ListNodesRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestClient_RetriesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, WithRetry(2, time.Millisecond), WithLogger(testLogger()))
	require.NoError(t, err)

	err = c.Hello(context.Background())
	assert.ErrorContains(t, err, "failed after 2 attempts")
}

func TestClient_DoesNotRepeatCommittingCalls(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c, err := New(srv.URL, WithRetry(5, time.Millisecond), WithLogger(testLogger()))
		require.NoError(t, err)

		_, err = c.SetCommand(context.Background(), "abc", "ping", nil)
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())

		_, err = c.GetCommand(context.Background(), "abc")
		require.Error(t, err)
		assert.Equal(t, int32(2), calls.Load())

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	})

	t.Run("connection dropped after the request was sent", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = io.ReadAll(r.Body)
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				return
			}
			conn.Close()
		}))
		defer srv.Close()

		c, err := New(srv.URL, WithRetry(5, time.Millisecond), WithLogger(testLogger()))
		require.NoError(t, err)

		_, err = c.SetCommand(context.Background(), "abc", "ping", nil)
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())

		// Calls that are safe to repeat still retry on the same failure
		_, err = c.ListNodes(context.Background(), protocol.ListNodesRequest{})
		assert.ErrorContains(t, err, "failed after 5 attempts")
		assert.Equal(t, int32(6), calls.Load())
	})

	t.Run("request never sent", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c, err := New(url, WithRetry(2, time.Millisecond), WithLogger(testLogger()))
		require.NoError(t, err)

		_, err = c.SetCommand(context.Background(), "abc", "ping", nil)
		assert.ErrorContains(t, err, "failed after 2 attempts")
	})
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Request is not authenticated"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetry(5, time.Millisecond))
	require.NoError(t, err)

	_, err = c.GetCommand(context.Background(), "abc")
	assert.True(t, IsUnauthorized(err))
	assert.ErrorContains(t, err, "Request is not authenticated")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetry(5, time.Hour), WithLogger(testLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.ListNodes(ctx, protocol.ListNodesRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_SendsBearerToken(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"nodes":[]}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithToken("first"))
	require.NoError(t, err)

	_, err = c.ListNodes(context.Background(), protocol.ListNodesRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer first", got.Load())

	c.SetToken("second")
	_, err = c.ListNodes(context.Background(), protocol.ListNodesRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", got.Load())
	assert.Equal(t, "second", c.Token())
}

func TestNewHTTPClient(t *testing.T) {
	hc, err := NewHTTPClient(TransportConfig{ProxyURL: "http://proxy.internal:3128", Timeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, hc.Timeout)

	_, err = NewHTTPClient(TransportConfig{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}

// TestClient_AgainstGateway drives every call through the real server.
func TestClient_AgainstGateway(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "prachand.db")
	cfg.Database.MaxConnections = 2

	gw, err := gateway.New(ctx, cfg, testLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()
	defer gw.Store().Close()

	// Bootstrap a controller directly in the store
	key, err := auth.GenerateKey()
	require.NoError(t, err)
	sess, err := gw.Store().Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.AddController(ctx, &store.Controller{ControllerIdentifier: "ops", ControllerKey: key}))
	sess.Release()
	ctlToken, err := gw.Issuer().Issue(auth.ControllerPrincipal{ControllerIdentifier: "ops"}, key)
	require.NoError(t, err)

	agent, err := New(srv.URL, WithRetry(1, 0))
	require.NoError(t, err)
	ctl, err := New(srv.URL, WithToken(ctlToken), WithRetry(1, 0))
	require.NoError(t, err)

	require.NoError(t, agent.Hello(ctx))

	token, err := agent.Enroll(ctx, "abc", protocol.HostDetails{Hostname: "web-1", OSName: "linux"})
	require.NoError(t, err)
	agent.SetToken(token)

	nodes, err := ctl.ListNodes(ctx, protocol.ListNodesRequest{})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "web-1", nodes[0].Hostname)

	id, err := ctl.SetCommand(ctx, "abc", "ping", nil)
	require.NoError(t, err)

	cmd, err := agent.GetCommand(ctx, "abc")
	require.NoError(t, err)
	require.True(t, cmd.HasWork())
	assert.Equal(t, id, cmd.ID)

	_, err = ctl.GetResponse(ctx, "abc", id)
	assert.ErrorIs(t, err, ErrNoResponse)

	require.NoError(t, agent.SetResponse(ctx, "abc", id, "pong"))
	assert.ErrorIs(t, agent.SetResponse(ctx, "abc", id, "again"), ErrDuplicateResponse)

	resp, err := ctl.GetResponse(ctx, "abc", id)
	require.NoError(t, err)
	assert.Equal(t, "pong", resp)

	// A stale token after re-enrollment is reported as unauthorized
	fresh, err := agent.Enroll(ctx, "abc", protocol.HostDetails{})
	require.NoError(t, err)
	_, err = agent.GetCommand(ctx, "abc")
	assert.True(t, IsUnauthorized(err))
	agent.SetToken(fresh)
	cmd, err = agent.GetCommand(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, cmd.HasWork())
}
