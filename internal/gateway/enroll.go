// ABOUTME: Enrollment handler issuing node keys and host tokens
// ABOUTME: Creates new nodes, rotates keys of known ones, and denies ambiguous identities

package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/2389/prachand/internal/auth"
	"github.com/2389/prachand/internal/protocol"
	"github.com/2389/prachand/internal/store"
)

// errEnrollDenied marks an identifier that matches more than one node.
var errEnrollDenied = errors.New("host identifier matches more than one node")

// enrollAttempts bounds retries after losing an insert race for the same
// identifier or key.
const enrollAttempts = 2

func (g *Gateway) handleEnroll(w http.ResponseWriter, r *http.Request) {
	badRequest := func(reason string) {
		g.logger.Debug("enrollment rejected", "reason", reason)
		enrollmentsCounter.WithLabelValues("bad_request").Inc()
		g.writeJSON(w, http.StatusBadRequest, protocol.EnrollFailure{
			Message:     protocol.MsgEnrollBadRequest,
			NodeInvalid: true,
		})
	}

	f, err := decodeFields(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		badRequest(err.Error())
		return
	}
	hostIdentifier, ok := f.str("host_identifier")
	if !ok {
		badRequest("missing host_identifier")
		return
	}
	rawDetails, ok := f["host_details"].(map[string]any)
	if !ok {
		badRequest("missing host_details")
		return
	}
	details, err := protocol.DecodeHostDetails(rawDetails)
	if err != nil {
		badRequest(err.Error())
		return
	}

	key, err := g.enroll(r.Context(), hostIdentifier, details)
	switch {
	case errors.Is(err, errEnrollDenied):
		g.logger.Warn("enrollment denied", "host_identifier", hostIdentifier, "reason", err)
		enrollmentsCounter.WithLabelValues("denied").Inc()
		g.writeJSON(w, http.StatusForbidden, protocol.EnrollFailure{
			Message:     protocol.MsgEnrollDenied,
			NodeInvalid: true,
		})
		return
	case err != nil:
		g.logger.Error("enrollment failed", "host_identifier", hostIdentifier, "error", err)
		enrollmentsCounter.WithLabelValues("error").Inc()
		g.sendJSONError(w, http.StatusInternalServerError, protocol.MsgEnrollServerError)
		return
	}

	token, err := g.issuer.Issue(auth.HostPrincipal{HostIdentifier: hostIdentifier}, key)
	if err != nil {
		g.logger.Error("issuing host token", "host_identifier", hostIdentifier, "error", err)
		enrollmentsCounter.WithLabelValues("error").Inc()
		g.sendJSONError(w, http.StatusInternalServerError, protocol.MsgEnrollServerError)
		return
	}

	enrollmentsCounter.WithLabelValues("ok").Inc()
	g.logger.Info("node enrolled", "host_identifier", hostIdentifier)
	g.writeJSON(w, http.StatusOK, protocol.EnrollResponse{Token: token, NodeInvalid: false})
}

// enroll creates or re-keys the node and returns its new key.
func (g *Gateway) enroll(ctx context.Context, hostIdentifier string, details protocol.HostDetails) (string, error) {
	sess, err := g.store.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Release()

	var key string
	for attempt := 0; attempt < enrollAttempts; attempt++ {
		err = sess.InTx(ctx, func(tx *store.Session) error {
			nodes, err := tx.NodesByIdentifier(ctx, hostIdentifier)
			if err != nil {
				return err
			}
			if len(nodes) > 1 {
				return errEnrollDenied
			}

			key, err = auth.GenerateUniqueKey(ctx, g.config.Auth.KeyAttempts, tx.NodeKeyInUse)
			if err != nil {
				return err
			}

			if len(nodes) == 1 {
				return tx.UpdateNodeKey(ctx, hostIdentifier, key)
			}

			now := g.now()
			return tx.AddNode(ctx, &store.Node{
				HostIdentifier: hostIdentifier,
				NodeKey:        key,
				Details:        nodeDetails(details),
				EnrolledOn:     now,
				LastSeen:       now,
			})
		})
		if !errors.Is(err, store.ErrDuplicateNode) {
			break
		}
		g.logger.Debug("enrollment raced, retrying", "host_identifier", hostIdentifier, "attempt", attempt+1)
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

func nodeDetails(d protocol.HostDetails) store.NodeDetails {
	return store.NodeDetails{
		OSArch:          d.OSArch,
		OSBuild:         d.OSBuild,
		OSMajor:         d.OSMajor,
		OSMinor:         d.OSMinor,
		OSName:          d.OSName,
		OSPlatform:      d.OSPlatform,
		HardwareVendor:  d.HardwareVendor,
		HardwareModel:   d.HardwareModel,
		HardwareVersion: d.HardwareVersion,
		CPULogicalCores: d.CPULogicalCores,
		CPUType:         d.CPUType,
		PhysicalMemory:  d.PhysicalMemory,
		Hostname:        d.Hostname,
		AgentVersion:    d.AgentVersion,
	}
}
