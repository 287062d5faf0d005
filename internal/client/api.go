// ABOUTME: Typed calls for each prachand-server endpoint
// ABOUTME: Maps documented status codes onto sentinel errors callers can branch on

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/2389/prachand/internal/protocol"
)

// Hello checks that the server is reachable.
func (c *Client) Hello(ctx context.Context) error {
	raw, err := c.do(ctx, http.MethodGet, protocol.PathHello, nil)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(raw)) != protocol.HelloMessage {
		return fmt.Errorf("unexpected hello body %q", raw)
	}
	return nil
}

// Enroll registers hostIdentifier and returns the new host token. The
// client keeps using its current token; call SetToken to switch.
func (c *Client) Enroll(ctx context.Context, hostIdentifier string, details protocol.HostDetails) (string, error) {
	var resp protocol.EnrollResponse
	if _, err := c.post(ctx, protocol.PathEnroll, protocol.EnrollRequest{
		HostIdentifier: hostIdentifier,
		HostDetails:    details,
	}, &resp); err != nil {
		return "", fmt.Errorf("enrolling %s: %w", hostIdentifier, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("enrolling %s: server returned no token", hostIdentifier)
	}
	return resp.Token, nil
}

// GetCommand claims the next command for hostIdentifier. A response with
// HasWork() false means the queue is empty.
func (c *Client) GetCommand(ctx context.Context, hostIdentifier string) (*protocol.GetCommandResponse, error) {
	var resp protocol.GetCommandResponse
	if _, err := c.post(ctx, protocol.PathGetCommand, protocol.GetCommandRequest{HostIdentifier: hostIdentifier}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetCommand queues a command for hostIdentifier and returns its id.
func (c *Client) SetCommand(ctx context.Context, hostIdentifier, command string, arguments []string) (uint64, error) {
	if arguments == nil {
		arguments = []string{}
	}
	var resp protocol.SetCommandResponse
	if _, err := c.post(ctx, protocol.PathSetCommand, protocol.SetCommandRequest{
		HostIdentifier: hostIdentifier,
		Command:        command,
		Arguments:      arguments,
	}, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// GetResponse fetches the recorded result of a command, or ErrNoResponse.
func (c *Client) GetResponse(ctx context.Context, hostIdentifier string, commandID uint64) (string, error) {
	var resp protocol.GetResponseResponse
	_, err := c.post(ctx, protocol.PathGetResponse, protocol.GetResponseRequest{
		HostIdentifier: hostIdentifier,
		CommandID:      commandID,
	}, &resp)
	if hasStatus(err, http.StatusNotFound) {
		return "", ErrNoResponse
	}
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// SetResponse records the result of a command, or returns ErrDuplicateResponse.
func (c *Client) SetResponse(ctx context.Context, hostIdentifier string, commandID uint64, response string) error {
	_, err := c.post(ctx, protocol.PathSetResponse, protocol.SetResponseRequest{
		HostIdentifier: hostIdentifier,
		CommandID:      commandID,
		Response:       response,
	}, nil)
	if hasStatus(err, http.StatusConflict) {
		return ErrDuplicateResponse
	}
	return err
}

// ListNodes returns one page of enrolled nodes.
func (c *Client) ListNodes(ctx context.Context, req protocol.ListNodesRequest) ([]protocol.NodeSummary, error) {
	var resp protocol.ListNodesResponse
	if _, err := c.post(ctx, protocol.PathListNodes, req, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
