// ABOUTME: Gateway orchestrator wiring the store, authenticator, and HTTP server
// ABOUTME: Owns the listener lifecycle from startup through graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/prachand/internal/auth"
	"github.com/2389/prachand/internal/config"
	"github.com/2389/prachand/internal/pool"
	"github.com/2389/prachand/internal/store"
)

// Gateway is the coordination server. Agents enroll and poll it for work;
// controllers queue commands and read results through it.
type Gateway struct {
	config     *config.Config
	store      *store.Store
	issuer     *auth.Issuer
	authn      *auth.Authenticator
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
	now        func() time.Time
}

// storeConfig maps the database section onto the connection pool.
func storeConfig(cfg *config.Config) pool.Config {
	return pool.Config{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN(),
		MaxConnections: cfg.Database.MaxConnections,
	}
}

// New creates a gateway with the given configuration. It opens the store and
// prepares every pooled connection before returning.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(ctx, storeConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	issuer := auth.NewIssuer(cfg.Auth.Issuer)
	gw := &Gateway{
		config: cfg,
		store:  st,
		issuer: issuer,
		authn:  auth.NewAuthenticator(issuer, st, logger),
		logger: logger.With("component", "gateway"),
		now:    time.Now,
	}
	gw.handler = gw.newRouter()

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           gw.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return gw, nil
}

// Handler returns the routed HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Store returns the backing store.
func (g *Gateway) Store() *store.Store {
	return g.store
}

// Issuer returns the token issuer.
func (g *Gateway) Issuer() *auth.Issuer {
	return g.issuer
}

// startServer serves HTTP or HTTPS in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		var err error
		if tlsCfg := g.config.Server.TLS; tlsCfg.Enabled() {
			g.logger.Info("HTTPS server listening", "addr", ln.Addr().String())
			err = g.httpServer.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
			err = g.httpServer.Serve(ln)
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("starting gateway", "addr", g.httpServer.Addr)

	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		_ = g.store.Close()
		return fmt.Errorf("listening on %s: %w", g.httpServer.Addr, err)
	}
	return g.serve(ctx, ln)
}

func (g *Gateway) serve(ctx context.Context, ln net.Listener) error {
	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, waits for in-flight handlers, and
// closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
