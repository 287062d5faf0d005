// ABOUTME: HTTP route table and cross-cutting middleware
// ABOUTME: Public probes and enrollment, then authenticated routes gated by scope

package gateway

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/prachand/internal/auth"
	"github.com/2389/prachand/internal/protocol"
)

// RequestIDHeader carries the per-request identifier, echoed back to callers.
const RequestIDHeader = "X-Request-ID"

func (g *Gateway) newRouter() http.Handler {
	r := mux.NewRouter()
	r.Use(g.recoverMiddleware, g.requestIDMiddleware, g.metricsMiddleware)

	r.Methods("GET").Path(protocol.PathHello).HandlerFunc(g.handleHello)
	r.Methods("GET").Path("/health").HandlerFunc(g.handleHealth)
	r.Methods("GET").Path("/health/ready").HandlerFunc(g.handleReady)
	if g.config.Metrics.Enabled {
		r.Methods("GET").Path(g.config.Metrics.Path).Handler(promhttp.Handler())
	}
	r.Methods("POST").Path(protocol.PathEnroll).HandlerFunc(g.handleEnroll)

	host := g.authn.RequireScope(auth.ScopeHost)
	controller := g.authn.RequireScope(auth.ScopeController)
	either := g.authn.RequireScope(auth.ScopeHost, auth.ScopeController)

	api := r.NewRoute().Subrouter()
	api.Use(g.authn.Middleware)
	api.Methods("POST").Path(protocol.PathGetCommand).Handler(host(http.HandlerFunc(g.handleGetCommand)))
	api.Methods("POST").Path(protocol.PathSetCommand).Handler(controller(http.HandlerFunc(g.handleSetCommand)))
	api.Methods("POST").Path(protocol.PathGetResponse).Handler(either(http.HandlerFunc(g.handleGetResponse)))
	api.Methods("POST").Path(protocol.PathSetResponse).Handler(host(http.HandlerFunc(g.handleSetResponse)))
	api.Methods("POST").Path(protocol.PathListNodes).Handler(controller(http.HandlerFunc(g.handleListNodes)))

	return r
}

// statusRecorder remembers the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		requestsCounter.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

func (g *Gateway) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware turns a handler panic into a 500.
func (g *Gateway) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				g.logger.Error("handler panic",
					"path", r.URL.Path,
					"request_id", w.Header().Get(RequestIDHeader),
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				g.sendJSONError(w, http.StatusInternalServerError, protocol.MsgServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleHello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(protocol.HelloMessage))
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers through the pool.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	size, idle := g.store.PoolStats()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d/%d connections idle)", idle, size)
}
