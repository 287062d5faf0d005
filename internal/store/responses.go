// ABOUTME: Response queue operations on a pooled session
// ABOUTME: Responses are written once per (host, command) and read any number of times

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GetResponse returns the response recorded for a command, or ErrNotFound.
func (s *Session) GetResponse(ctx context.Context, hostIdentifier string, commandID int64) (*Response, error) {
	rows, err := s.q.Query(ctx, OpGetResponse, hostIdentifier, commandID)
	if err != nil {
		return nil, fmt.Errorf("querying response: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying response: %w", err)
		}
		return nil, ErrNotFound
	}

	var (
		r  Response
		ts int64
	)
	if err := rows.Scan(&r.HostIdentifier, &r.CommandID, &ts, &r.Response); err != nil {
		return nil, fmt.Errorf("scanning response: %w", err)
	}
	r.Timestamp = unixTime(ts)
	return &r, nil
}

// AddResponse records a response. It returns ErrDuplicateResponse when one
// already exists for the pair, whether found by the check or by the
// primary key rejecting a concurrent insert.
func (s *Session) AddResponse(ctx context.Context, r *Response) error {
	_, err := s.GetResponse(ctx, r.HostIdentifier, r.CommandID)
	switch {
	case err == nil:
		return ErrDuplicateResponse
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	_, err = s.q.Exec(ctx, OpSetResponse, r.HostIdentifier, r.CommandID, r.Timestamp.Unix(), r.Response)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateResponse
		}
		return fmt.Errorf("inserting response: %w", err)
	}

	s.store.logger.Debug("recorded response", "host_identifier", r.HostIdentifier, "command_id", r.CommandID)
	return nil
}
