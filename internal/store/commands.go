// ABOUTME: Command queue operations on a pooled session
// ABOUTME: Enqueue returns the assigned id and claiming marks exactly one command as sent

package store

import (
	"context"
	"fmt"
	"time"
)

// maxClaimAttempts bounds how often ClaimCommand re-reads the queue after
// losing a compare-and-set to a concurrent poller.
const maxClaimAttempts = 3

// EnqueueCommand stores an opaque command payload for hostIdentifier and
// returns its id.
func (s *Session) EnqueueCommand(ctx context.Context, hostIdentifier string, payload []byte, queuedAt time.Time) (int64, error) {
	rows, err := s.q.Query(ctx, OpSetCommand, hostIdentifier, string(payload), queuedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("inserting command: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scanning command id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("inserting command: %w", err)
	}
	if len(ids) != 1 {
		return 0, fmt.Errorf("inserting command: expected one id, got %d", len(ids))
	}

	s.store.logger.Debug("queued command", "id", ids[0], "host_identifier", hostIdentifier)
	return ids[0], nil
}

// NextCommand returns the oldest unsent command for hostIdentifier, or nil
// when the queue is empty.
func (s *Session) NextCommand(ctx context.Context, hostIdentifier string) (*Command, error) {
	rows, err := s.q.Query(ctx, OpGetCommand, hostIdentifier)
	if err != nil {
		return nil, fmt.Errorf("querying command: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying command: %w", err)
		}
		return nil, nil
	}

	var (
		cmd      Command
		payload  string
		queuedAt int64
	)
	if err := rows.Scan(&cmd.ID, &cmd.HostIdentifier, &payload, &queuedAt); err != nil {
		return nil, fmt.Errorf("scanning command: %w", err)
	}
	cmd.Payload = []byte(payload)
	cmd.QueuedAt = unixTime(queuedAt)
	return &cmd, nil
}

// MarkCommandSent flags command id as sent. It reports false when the
// command was already claimed.
func (s *Session) MarkCommandSent(ctx context.Context, id int64, sentAt time.Time) (bool, error) {
	res, err := s.q.Exec(ctx, OpMarkCommandAsSent, sentAt.Unix(), id)
	if err != nil {
		return false, fmt.Errorf("marking command as sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// ClaimCommand selects the oldest unsent command for hostIdentifier and
// marks it sent. It returns nil when there is no work. Run it inside InTx
// so the read and the update share one transaction.
func (s *Session) ClaimCommand(ctx context.Context, hostIdentifier string, now time.Time) (*Command, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		cmd, err := s.NextCommand(ctx, hostIdentifier)
		if err != nil || cmd == nil {
			return nil, err
		}

		claimed, err := s.MarkCommandSent(ctx, cmd.ID, now)
		if err != nil {
			return nil, err
		}
		if claimed {
			cmd.Sent = true
			cmd.SentAt = now.UTC().Truncate(time.Second)
			s.store.logger.Debug("claimed command", "id", cmd.ID, "host_identifier", hostIdentifier)
			return cmd, nil
		}

		s.store.logger.Debug("command claimed concurrently, retrying", "id", cmd.ID, "attempt", attempt+1)
	}

	// Every attempt lost a race; report no work and let the poller retry
	return nil, nil
}
