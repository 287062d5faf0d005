// ABOUTME: Command dispatch table mapping command names to handlers
// ABOUTME: Unknown names get a not-implemented answer instead of an error

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/2389/prachand/internal/protocol"
)

// Handler executes one command and returns the text reported back.
type Handler func(ctx context.Context, args []string) string

// Registry maps command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs h for name, replacing any previous handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names lists the registered commands in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute runs the handler for name.
func (r *Registry) Execute(ctx context.Context, name string, args []string) string {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("The function [%s] is not implemented.", name)
	}
	return h(ctx, args)
}

// ExecutePayload decodes a claimed command payload and runs it. A payload
// that does not decode runs as the empty command name.
func (r *Registry) ExecutePayload(ctx context.Context, raw json.RawMessage) string {
	var payload protocol.CommandPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return r.Execute(ctx, "", nil)
	}
	name, args, err := payload.Decode()
	if err != nil {
		return r.Execute(ctx, "", nil)
	}
	return r.Execute(ctx, name, args)
}

// DefaultRegistry installs the built-in commands.
func DefaultRegistry(details protocol.HostDetails) *Registry {
	r := NewRegistry()
	r.Register("ping", func(ctx context.Context, args []string) string {
		return "pong"
	})
	r.Register("sysinfo", func(ctx context.Context, args []string) string {
		b, err := json.Marshal(details)
		if err != nil {
			return err.Error()
		}
		return string(b)
	})
	r.Register("shell", shellHandler)
	return r
}

// shellHandler acknowledges shell commands without running them.
func shellHandler(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "No shell command was specified for execution."
	}
	return fmt.Sprintf("The shell command [%s] is not executed.", args[0])
}
