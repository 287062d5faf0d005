// ABOUTME: Top-level shell commands: help, lsnode, attach, run, result, quit
// ABOUTME: Each handler receives the session explicitly and may change it

package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/2389/prachand/internal/client"
	"github.com/2389/prachand/internal/protocol"
)

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, sess *Session, args []string) error
}

func (s *Shell) register(name string, cmd command) {
	if _, exists := s.commands[name]; !exists {
		s.order = append(s.order, name)
	}
	s.commands[name] = cmd
}

func (s *Shell) registerCommands() {
	s.register("help", command{usage: "help [command]", help: "print help", run: s.cmdHelp})
	s.register("lsnode", command{usage: "lsnode [limit] [after-id]", help: "list enrolled nodes", run: s.cmdListNodes})
	s.register("attach", command{usage: "attach <host>", help: "send commands to a node", run: s.cmdAttach})
	s.register("detach", command{usage: "detach", help: "leave the attached node", run: s.cmdDetach})
	s.register("run", command{usage: "run <host> <command> [args...]", help: "run one command on a node", run: s.cmdRun})
	s.register("result", command{usage: "result [host] <id>", help: "fetch the result of a command", run: s.cmdResult})
	s.register("quit", command{usage: "quit", help: "leave the shell", run: s.cmdQuit})
	s.register("exit", command{usage: "exit", help: "leave the shell", run: s.cmdQuit})
}

func (s *Shell) cmdHelp(ctx context.Context, sess *Session, args []string) error {
	if len(args) > 0 {
		cmd, ok := s.commands[args[0]]
		if !ok {
			return fmt.Errorf("no help for [%s], type 'help' for a list", args[0])
		}
		fmt.Fprintf(s.out, "%s\t%s\n", cmd.usage, cmd.help)
		return nil
	}

	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, name := range s.order {
		cmd := s.commands[name]
		fmt.Fprintf(w, "  %s\t%s\n", cmd.usage, cmd.help)
	}
	return w.Flush()
}

func (s *Shell) printAgentHelp() {
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  <command> [args...]\trun a command on the node")
	fmt.Fprintln(w, "  shell\tenter shell mode")
	fmt.Fprintln(w, "  shell <line>\trun one shell line on the node")
	fmt.Fprintln(w, "  result <id>\tfetch the result of a command")
	fmt.Fprintln(w, "  lsnode [limit] [after-id]\tlist enrolled nodes")
	fmt.Fprintln(w, "  detach\tleave the node")
	_ = w.Flush()
}

func (s *Shell) cmdListNodes(ctx context.Context, sess *Session, args []string) error {
	req := protocol.ListNodesRequest{Limit: 10}
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		req.Limit = n
	}
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[1])
		}
		req.ID = n
	}

	nodes, err := s.api.ListNodes(ctx, req)
	if err != nil {
		return fmt.Errorf("listing nodes: %w", err)
	}
	if len(nodes) == 0 {
		s.dimColor.Fprintln(s.out, "(no nodes)")
		return nil
	}

	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHOST\tHOSTNAME\tOS\tVERSION")
	for _, n := range nodes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", n.ID, n.HostIdentifier, n.Hostname, n.OSName, n.AgentVersion)
	}
	return w.Flush()
}

func (s *Shell) cmdAttach(ctx context.Context, sess *Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: attach <host>")
	}
	sess.Attach(args[0])
	fmt.Fprintf(s.out, "attached to %s, 'detach' to leave\n", args[0])
	return nil
}

func (s *Shell) cmdDetach(ctx context.Context, sess *Session, args []string) error {
	if !sess.IsAttached() {
		return errors.New("no node attached")
	}
	sess.Detach()
	return nil
}

func (s *Shell) cmdRun(ctx context.Context, sess *Session, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: run <host> <command> [args...]")
	}
	target := &Session{Attached: args[0], Mode: ModeAgent}
	return s.runRemote(ctx, target, args[1], args[2:])
}

func (s *Shell) cmdResult(ctx context.Context, sess *Session, args []string) error {
	host := sess.Attached
	switch {
	case len(args) == 1 && host != "":
	case len(args) == 2:
		host, args = args[0], args[1:]
	default:
		return errors.New("usage: result [host] <id>")
	}

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid command id %q", args[0])
	}

	resp, err := s.api.GetResponse(ctx, host, id)
	if errors.Is(err, client.ErrNoResponse) {
		s.dimColor.Fprintf(s.out, "no response yet for command %d\n", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetching response %d: %w", id, err)
	}
	fmt.Fprintln(s.out, resp)
	return nil
}

func (s *Shell) cmdQuit(ctx context.Context, sess *Session, args []string) error {
	sess.Quit = true
	return nil
}
