// ABOUTME: Polls for a node's recorded response after queueing a command
// ABOUTME: Waits an initial delay, then checks on an interval until a deadline

package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/prachand/internal/client"
)

// ErrResponseTimeout is returned when no result arrives within WaitTimeout.
var ErrResponseTimeout = errors.New("timed out waiting for response")

func (s *Shell) waitForResponse(ctx context.Context, host string, id uint64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancel()

	delay := s.cfg.InitialWait
	for {
		if err := sleep(ctx, delay); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("command %d: %w (use 'result %d' to check later)", id, ErrResponseTimeout, id)
			}
			return "", err
		}
		delay = s.cfg.PollInterval

		resp, err := s.api.GetResponse(ctx, host, id)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, client.ErrNoResponse) {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("command %d: %w (use 'result %d' to check later)", id, ErrResponseTimeout, id)
			}
			return "", fmt.Errorf("fetching response %d: %w", id, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
