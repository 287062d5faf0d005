// ABOUTME: Node listing handler for controllers
// ABOUTME: Keyset pagination by id with an optional last-seen lower bound

package gateway

import (
	"math"
	"net/http"
	"time"

	"github.com/2389/prachand/internal/protocol"
	"github.com/2389/prachand/internal/store"
)

const (
	defaultListLimit = 10
	maxListLimit     = 1000
)

// listFilter reads the optional paging fields. Absent or mistyped values
// fall back to their defaults instead of failing the request.
func listFilter(f fields) store.NodeFilter {
	clamp := func(v uint64) int64 {
		if v > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(v)
	}

	filter := store.NodeFilter{Limit: defaultListLimit}
	if v, ok := f.unsigned("last_seen"); ok && v > 0 {
		filter.LastSeenAfter = time.Unix(clamp(v), 0).UTC()
	}
	if v, ok := f.unsigned("id"); ok {
		filter.IDAfter = clamp(v)
	}
	if v, ok := f.unsigned("limit"); ok {
		filter.Limit = clamp(v)
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return filter
}

func (g *Gateway) handleListNodes(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, protocol.MsgBadRequest)
		return
	}
	filter := listFilter(f)

	sess, err := g.store.Acquire(r.Context())
	if err != nil {
		g.storeError(w, r, "acquire", err)
		return
	}
	defer sess.Release()

	nodes, err := sess.ListNodes(r.Context(), filter)
	if err != nil {
		g.storeError(w, r, "list_nodes", err)
		return
	}

	resp := protocol.ListNodesResponse{Nodes: make([]protocol.NodeSummary, 0, len(nodes))}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, protocol.NodeSummary{
			ID:             uint64(n.ID),
			HostIdentifier: n.HostIdentifier,
			Hostname:       n.Hostname,
			OSName:         n.OSName,
			AgentVersion:   n.AgentVersion,
		})
	}
	g.writeJSON(w, http.StatusOK, resp)
}
