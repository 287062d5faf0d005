// ABOUTME: Command queue handlers for controllers and polling nodes
// ABOUTME: Controllers enqueue opaque payloads and nodes claim the oldest unsent one

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/2389/prachand/internal/protocol"
	"github.com/2389/prachand/internal/store"
)

func (g *Gateway) handleSetCommand(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	hostIdentifier, ok := f.str("host_identifier")
	if !ok || !f.has("command") || !f.has("arguments") {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}

	payload, err := commandPayload(f)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}

	sess, err := g.store.Acquire(r.Context())
	if err != nil {
		g.storeError(w, r, "acquire", err)
		return
	}
	defer sess.Release()

	id, err := sess.EnqueueCommand(r.Context(), hostIdentifier, payload, g.now())
	if err != nil {
		g.storeError(w, r, "set_command", err)
		return
	}

	commandsQueuedCounter.Inc()
	g.logger.Info("command queued", "id", id, "host_identifier", hostIdentifier)
	g.writeJSON(w, http.StatusOK, protocol.SetCommandResponse{ID: uint64(id)})
}

// commandPayload packs the command and its arguments, verbatim, into the
// stored payload.
func commandPayload(f fields) ([]byte, error) {
	command, err := json.Marshal(f["command"])
	if err != nil {
		return nil, err
	}
	arguments, err := json.Marshal(f["arguments"])
	if err != nil {
		return nil, err
	}
	return json.Marshal(protocol.CommandPayload{Command: command, Arguments: arguments})
}

func (g *Gateway) handleGetCommand(w http.ResponseWriter, r *http.Request) {
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

	var cmd *store.Command
	now := g.now()
	err = sess.InTx(r.Context(), func(tx *store.Session) error {
		if err := tx.TouchNode(r.Context(), hostIdentifier, now); err != nil {
			return err
		}
		cmd, err = tx.ClaimCommand(r.Context(), hostIdentifier, now)
		return err
	})
	if err != nil {
		g.storeError(w, r, "get_command", err)
		return
	}

	if cmd == nil {
		g.writeJSON(w, http.StatusOK, protocol.NoCommand)
		return
	}

	payload := json.RawMessage(cmd.Payload)
	if !json.Valid(payload) {
		// Hand over rows written by other tools as a JSON string
		payload, _ = json.Marshal(string(cmd.Payload))
	}

	commandsClaimedCounter.Inc()
	g.logger.Info("command claimed", "id", cmd.ID, "host_identifier", hostIdentifier)
	g.writeJSON(w, http.StatusOK, protocol.GetCommandResponse{ID: uint64(cmd.ID), Command: payload})
}
