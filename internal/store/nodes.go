// ABOUTME: Node registry operations on a pooled session
// ABOUTME: Enrollment inserts, key rotation, liveness updates, and keyset listing

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NodesByIdentifier returns every node row matching hostIdentifier. Callers
// treat anything but exactly one row as an integrity problem.
func (s *Session) NodesByIdentifier(ctx context.Context, hostIdentifier string) ([]*Node, error) {
	rows, err := s.q.Query(ctx, OpValidateNode, hostIdentifier)
	if err != nil {
		return nil, fmt.Errorf("querying node: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return nodes, nil
}

func scanNode(rows *sql.Rows) (*Node, error) {
	var (
		n          Node
		d          = &n.Details
		enrolledOn int64
		lastSeen   int64
	)
	err := rows.Scan(
		&n.ID, &n.HostIdentifier, &n.NodeKey, &n.NodeInvalid,
		&d.OSArch, &d.OSBuild, &d.OSMajor, &d.OSMinor, &d.OSName, &d.OSPlatform,
		&d.HardwareVendor, &d.HardwareModel, &d.HardwareVersion,
		&d.CPULogicalCores, &d.CPUType, &d.PhysicalMemory,
		&d.Hostname, &d.AgentVersion, &enrolledOn, &lastSeen,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning node: %w", err)
	}
	n.EnrolledOn = unixTime(enrolledOn)
	n.LastSeen = unixTime(lastSeen)
	return &n, nil
}

// NodeKeyInUse reports whether any node currently holds key.
func (s *Session) NodeKeyInUse(ctx context.Context, key string) (bool, error) {
	rows, err := s.q.Query(ctx, OpValidateNodeKey, key)
	if err != nil {
		return false, fmt.Errorf("checking node key: %w", err)
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return false, fmt.Errorf("scanning node key count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("checking node key: %w", err)
	}
	return count > 0, nil
}

// AddNode inserts a newly enrolled node. Empty descriptive fields are
// stored as Unknown and zero timestamps become now.
func (s *Session) AddNode(ctx context.Context, node *Node) error {
	now := time.Now().UTC()
	if node.EnrolledOn.IsZero() {
		node.EnrolledOn = now
	}
	if node.LastSeen.IsZero() {
		node.LastSeen = node.EnrolledOn
	}
	node.Details = node.Details.withDefaults()
	d := node.Details

	_, err := s.q.Exec(ctx, OpAddNode,
		node.HostIdentifier, node.NodeKey, node.NodeInvalid,
		d.OSArch, d.OSBuild, d.OSMajor, d.OSMinor, d.OSName, d.OSPlatform,
		d.HardwareVendor, d.HardwareModel, d.HardwareVersion,
		d.CPULogicalCores, d.CPUType, d.PhysicalMemory,
		d.Hostname, d.AgentVersion,
		node.EnrolledOn.Unix(), node.LastSeen.Unix(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateNode
		}
		return fmt.Errorf("inserting node: %w", err)
	}

	s.store.logger.Debug("added node", "host_identifier", node.HostIdentifier)
	return nil
}

// UpdateNodeKey replaces the key of an existing node. Descriptive fields
// and timestamps are left alone.
func (s *Session) UpdateNodeKey(ctx context.Context, hostIdentifier, key string) error {
	res, err := s.q.Exec(ctx, OpUpdateNodeKey, key, hostIdentifier)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateNode
		}
		return fmt.Errorf("updating node key: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.store.logger.Debug("rotated node key", "host_identifier", hostIdentifier)
	return nil
}

// TouchNode records that a node was seen at t. Unknown identifiers are ignored.
func (s *Session) TouchNode(ctx context.Context, hostIdentifier string, t time.Time) error {
	if _, err := s.q.Exec(ctx, OpTouchNode, t.Unix(), hostIdentifier); err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}
	return nil
}

// ListNodes returns nodes seen after the filter's bound with ids above its
// cursor, in ascending id order.
func (s *Session) ListNodes(ctx context.Context, filter NodeFilter) ([]*NodeSummary, error) {
	var lastSeen int64
	if !filter.LastSeenAfter.IsZero() {
		lastSeen = filter.LastSeenAfter.Unix()
	}

	rows, err := s.q.Query(ctx, OpListNodes, lastSeen, filter.IDAfter, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	nodes := []*NodeSummary{}
	for rows.Next() {
		var n NodeSummary
		if err := rows.Scan(&n.ID, &n.HostIdentifier, &n.Hostname, &n.OSName, &n.AgentVersion); err != nil {
			return nil, fmt.Errorf("scanning node summary: %w", err)
		}
		nodes = append(nodes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return nodes, nil
}
