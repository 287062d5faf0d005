// ABOUTME: Controller bootstrap: creates a controller row and its first token
// ABOUTME: Used by the server's "controller add" command, never over HTTP

package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/prachand/internal/auth"
	"github.com/2389/prachand/internal/store"
)

// maxControllerName bounds controller identifiers.
const maxControllerName = 100

// AddController registers a controller under identifier with a fresh key
// and returns a controller token for it.
func (g *Gateway) AddController(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", errors.New("controller name cannot be empty")
	}
	if len(identifier) > maxControllerName {
		return "", fmt.Errorf("controller name exceeds %d characters", maxControllerName)
	}

	key, err := auth.GenerateKey()
	if err != nil {
		return "", err
	}

	sess, err := g.store.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Release()

	err = sess.AddController(ctx, &store.Controller{
		ControllerIdentifier: identifier,
		ControllerKey:        key,
		CreatedOn:            g.now().UTC(),
	})
	if errors.Is(err, store.ErrDuplicateController) {
		return "", fmt.Errorf("controller %q already exists", identifier)
	}
	if err != nil {
		return "", err
	}

	token, err := g.issuer.Issue(auth.ControllerPrincipal{ControllerIdentifier: identifier}, key)
	if err != nil {
		return "", fmt.Errorf("issuing controller token: %w", err)
	}
	g.logger.Info("controller added", "controller_identifier", identifier)
	return token, nil
}
