// ABOUTME: Controller credential lookups and bootstrap inserts
// ABOUTME: Controllers are read by the authenticator and only written by the bootstrap command

package store

import (
	"context"
	"fmt"
	"time"
)

// ControllersByIdentifier returns every controller row matching identifier.
func (s *Session) ControllersByIdentifier(ctx context.Context, identifier string) ([]*Controller, error) {
	rows, err := s.q.Query(ctx, OpValidateController, identifier)
	if err != nil {
		return nil, fmt.Errorf("querying controller: %w", err)
	}
	defer rows.Close()

	var controllers []*Controller
	for rows.Next() {
		var (
			c         Controller
			createdOn int64
		)
		if err := rows.Scan(&c.ID, &c.ControllerIdentifier, &c.ControllerKey, &createdOn); err != nil {
			return nil, fmt.Errorf("scanning controller: %w", err)
		}
		c.CreatedOn = unixTime(createdOn)
		controllers = append(controllers, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating controllers: %w", err)
	}
	return controllers, nil
}

// AddController inserts a controller and sets its assigned ID.
func (s *Session) AddController(ctx context.Context, c *Controller) error {
	if c.CreatedOn.IsZero() {
		c.CreatedOn = time.Now().UTC()
	}

	rows, err := s.q.Query(ctx, OpAddController, c.ControllerIdentifier, c.ControllerKey, c.CreatedOn.Unix())
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateController
		}
		return fmt.Errorf("inserting controller: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			if isConstraintViolation(err) {
				return ErrDuplicateController
			}
			return fmt.Errorf("inserting controller: %w", err)
		}
		return fmt.Errorf("inserting controller: no id returned")
	}
	if err := rows.Scan(&c.ID); err != nil {
		return fmt.Errorf("scanning controller id: %w", err)
	}

	s.store.logger.Debug("added controller", "controller_identifier", c.ControllerIdentifier)
	return nil
}
