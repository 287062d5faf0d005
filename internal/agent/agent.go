// ABOUTME: Agent runtime: enroll once, then poll for commands and report results
// ABOUTME: Re-enrolls under the same identifier when the server rejects its token

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/prachand/internal/client"
	"github.com/2389/prachand/internal/protocol"
)

// DefaultPollInterval is how often an idle agent asks for work.
const DefaultPollInterval = 5 * time.Second

// Config holds agent runtime settings.
type Config struct {
	StatePath    string
	PollInterval time.Duration
	Details      protocol.HostDetails
}

// Agent polls one server on behalf of this host.
type Agent struct {
	cfg      Config
	client   *client.Client
	registry *Registry
	logger   *slog.Logger
	state    *State
}

// New creates an agent. It does not contact the server until Run.
func New(cfg Config, c *client.Client, registry *Registry, logger *slog.Logger) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:      cfg,
		client:   c,
		registry: registry,
		logger:   logger.With("component", "agent"),
	}
}

// HostIdentifier returns the enrolled identifier, or "" before enrollment.
func (a *Agent) HostIdentifier() string {
	if a.state == nil {
		return ""
	}
	return a.state.HostIdentifier
}

// Run enrolls if needed and then polls until ctx is canceled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.ensureEnrolled(ctx); err != nil {
		return err
	}
	a.logger.Info("agent started", "host_identifier", a.state.HostIdentifier, "poll_interval", a.cfg.PollInterval)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return nil
		case <-ticker.C:
		}

		if _, err := a.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("poll failed", "error", err)
		}
	}
}

// ensureEnrolled loads saved state or enrolls, retrying every poll
// interval until it succeeds or ctx ends.
func (a *Agent) ensureEnrolled(ctx context.Context) error {
	st, err := LoadState(a.cfg.StatePath)
	if err != nil {
		a.logger.Warn("ignoring unreadable state file", "path", a.cfg.StatePath, "error", err)
	}
	if st.Valid() {
		a.state = st
		a.client.SetToken(st.Token)
		return nil
	}

	hostIdentifier := uuid.NewString()
	for {
		err := a.enroll(ctx, hostIdentifier)
		if err == nil {
			return nil
		}
		a.logger.Warn("enrollment failed, retrying", "host_identifier", hostIdentifier, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.PollInterval):
		}
	}
}

// enroll obtains a token for hostIdentifier and persists it.
func (a *Agent) enroll(ctx context.Context, hostIdentifier string) error {
	token, err := a.client.Enroll(ctx, hostIdentifier, a.cfg.Details)
	if err != nil {
		return err
	}

	st := &State{HostIdentifier: hostIdentifier, Token: token}
	if err := SaveState(a.cfg.StatePath, st); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	a.state = st
	a.client.SetToken(token)
	a.logger.Info("enrolled", "host_identifier", hostIdentifier)
	return nil
}

// Poll asks for one command, runs it, and reports the result. It returns
// whether a command was handled.
func (a *Agent) Poll(ctx context.Context) (bool, error) {
	if a.state == nil {
		return false, errors.New("agent is not enrolled")
	}
	hostIdentifier := a.state.HostIdentifier

	cmd, err := a.client.GetCommand(ctx, hostIdentifier)
	if client.IsUnauthorized(err) {
		a.logger.Warn("token rejected, enrolling again", "host_identifier", hostIdentifier)
		if err := a.enroll(ctx, hostIdentifier); err != nil {
			return false, fmt.Errorf("re-enrolling: %w", err)
		}
		cmd, err = a.client.GetCommand(ctx, hostIdentifier)
	}
	if err != nil {
		return false, fmt.Errorf("getting command: %w", err)
	}
	if !cmd.HasWork() {
		return false, nil
	}

	a.logger.Debug("executing command", "id", cmd.ID)
	result := a.registry.ExecutePayload(ctx, cmd.Command)

	err = a.client.SetResponse(ctx, hostIdentifier, cmd.ID, result)
	if errors.Is(err, client.ErrDuplicateResponse) {
		a.logger.Debug("response already recorded", "id", cmd.ID)
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("reporting result of command %d: %w", cmd.ID, err)
	}
	return true, nil
}
