// ABOUTME: Response handlers: nodes record command results once, anyone may read them
// ABOUTME: A second write for the same command answers 409 and leaves the first untouched

package gateway

import (
	"errors"
	"math"
	"net/http"

	"github.com/2389/prachand/internal/protocol"
	"github.com/2389/prachand/internal/store"
)

func (g *Gateway) handleSetResponse(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	hostIdentifier, ok := f.str("host_identifier")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	commandID, ok := f.unsigned("command_id")
	if !ok || commandID > math.MaxInt64 {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	response, ok := f["response"].(string)
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	if !ownHost(r, hostIdentifier) {
		g.sendJSONError(w, http.StatusForbidden, protocol.MsgForbidden)
		return
	}

	sess, err := g.store.Acquire(r.Context())
	if err != nil {
		g.storeError(w, r, "acquire", err)
		return
	}
	defer sess.Release()

	err = sess.AddResponse(r.Context(), &store.Response{
		HostIdentifier: hostIdentifier,
		CommandID:      int64(commandID),
		Timestamp:      g.now(),
		Response:       response,
	})
	if errors.Is(err, store.ErrDuplicateResponse) {
		g.logger.Debug("duplicate response", "host_identifier", hostIdentifier, "command_id", commandID)
		g.sendJSONError(w, http.StatusConflict, protocol.MsgDuplicate)
		return
	}
	if err != nil {
		g.storeError(w, r, "set_response", err)
		return
	}

	responsesRecordedCounter.Inc()
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	hostIdentifier, ok := f.str("host_identifier")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	commandID, ok := f.unsigned("command_id")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	if !ownHost(r, hostIdentifier) {
		g.sendJSONError(w, http.StatusForbidden, protocol.MsgForbidden)
		return
	}

	notFound := protocol.GetResponseResponse{
		HostIdentifier: hostIdentifier,
		CommandID:      commandID,
		Response:       protocol.MsgNoResponse,
	}
	if commandID > math.MaxInt64 {
		g.writeJSON(w, http.StatusNotFound, notFound)
		return
	}

	sess, err := g.store.Acquire(r.Context())
	if err != nil {
		g.storeError(w, r, "acquire", err)
		return
	}
	defer sess.Release()

	resp, err := sess.GetResponse(r.Context(), hostIdentifier, int64(commandID))
	if errors.Is(err, store.ErrNotFound) {
		g.writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	if err != nil {
		g.storeError(w, r, "get_response", err)
		return
	}

	g.writeJSON(w, http.StatusOK, protocol.GetResponseResponse{
		HostIdentifier: resp.HostIdentifier,
		CommandID:      uint64(resp.CommandID),
		Response:       resp.Response,
	})
}
