// ABOUTME: Request decoding and response encoding shared by the API handlers
// ABOUTME: Loosely typed field access so absent and mistyped fields are told apart from bad JSON

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/2389/prachand/internal/auth"
	"github.com/2389/prachand/internal/protocol"
)

// maxRequestBytes bounds request bodies on unauthenticated routes.
const maxRequestBytes = 1 << 20

var errNotObject = errors.New("request body is not a JSON object")

// fields is a decoded JSON object whose values are checked one at a time.
type fields map[string]any

// decodeFields reads a JSON object, keeping numbers as json.Number so
// unsigned values are not squeezed through float64.
func decodeFields(r io.Reader) (fields, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return fields(obj), nil
}

// str returns a non-empty string field.
func (f fields) str(key string) (string, bool) {
	s, ok := f[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// unsigned returns an unsigned integer field. Negative, fractional, and
// non-numeric values are rejected.
func (f fields) unsigned(key string) (uint64, bool) {
	n, ok := f[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// has reports whether key is present and not null.
func (f fields) has(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

// writeJSON writes v with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, protocol.MessageResponse{Message: message})
}

// storeError logs a storage failure and answers 500.
func (g *Gateway) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	g.logger.Error("store operation failed",
		"op", op,
		"path", r.URL.Path,
		"request_id", w.Header().Get(RequestIDHeader),
		"error", err,
	)
	g.sendJSONError(w, http.StatusInternalServerError, protocol.MsgDatabaseError)
}

// ownHost checks that a host caller only names itself. Controllers may
// name any host.
func ownHost(r *http.Request, hostIdentifier string) bool {
	p := auth.MustPrincipalFromContext(r.Context())
	if p.Scope() != auth.ScopeHost {
		return true
	}
	return p.Identity() == hostIdentifier
}
