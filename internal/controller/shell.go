// ABOUTME: Line-oriented operator shell driving the controller endpoints
// ABOUTME: Reads commands, dispatches by session mode, and waits for node results

package controller

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/prachand/internal/protocol"
)

// API is the subset of the server client the shell needs.
type API interface {
	ListNodes(ctx context.Context, req protocol.ListNodesRequest) ([]protocol.NodeSummary, error)
	SetCommand(ctx context.Context, hostIdentifier, command string, arguments []string) (uint64, error)
	GetResponse(ctx context.Context, hostIdentifier string, commandID uint64) (string, error)
}

// Defaults for waiting on a node's answer.
const (
	DefaultInitialWait  = 2 * time.Second
	DefaultPollInterval = time.Second
	DefaultWaitTimeout  = 30 * time.Second
)

// Config holds shell settings.
type Config struct {
	// Prompt enables the interactive prompt. Off when input is piped.
	Prompt bool
	// InitialWait is the pause after queueing a command before the first
	// result check.
	InitialWait time.Duration
	// PollInterval is the pause between result checks.
	PollInterval time.Duration
	// WaitTimeout bounds how long the shell waits for a result.
	WaitTimeout time.Duration
}

// Shell is an interactive operator console.
type Shell struct {
	api    API
	cfg    Config
	out    io.Writer
	logger *slog.Logger

	commands map[string]command
	order    []string

	promptColor *color.Color
	errColor    *color.Color
	dimColor    *color.Color
}

// New creates a shell writing to out.
func New(api API, cfg Config, out io.Writer, logger *slog.Logger) *Shell {
	if cfg.InitialWait < 0 {
		cfg.InitialWait = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Shell{
		api:         api,
		cfg:         cfg,
		out:         out,
		logger:      logger.With("component", "controller"),
		commands:    make(map[string]command),
		promptColor: color.New(color.FgCyan, color.Bold),
		errColor:    color.New(color.FgRed),
		dimColor:    color.New(color.Faint),
	}
	s.registerCommands()
	return s
}

// Run reads lines from in until EOF, quit, or ctx is canceled.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	sess := &Session{}
	for !sess.Quit {
		s.prompt(sess)

		var line string
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		case line = <-lines:
		}

		if err := s.Execute(ctx, sess, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.errColor.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return nil
}

// Execute interprets one input line against sess.
func (s *Shell) Execute(ctx context.Context, sess *Session, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch sess.Mode {
	case ModeShell:
		return s.shellLine(ctx, sess, line)
	case ModeAgent:
		return s.agentLine(ctx, sess, line)
	default:
		return s.topLine(ctx, sess, line)
	}
}

func (s *Shell) prompt(sess *Session) {
	if !s.cfg.Prompt {
		return
	}
	switch sess.Mode {
	case ModeShell:
		s.promptColor.Fprintf(s.out, "prachand(%s:shell)$ ", sess.Attached)
	case ModeAgent:
		s.promptColor.Fprintf(s.out, "prachand(%s)> ", sess.Attached)
	default:
		s.promptColor.Fprint(s.out, "prachand> ")
	}
}

// topLine dispatches a command from the command table.
func (s *Shell) topLine(ctx context.Context, sess *Session, line string) error {
	fields := strings.Fields(line)
	cmd, ok := s.commands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command [%s], type 'help' for a list", fields[0])
	}
	return cmd.run(ctx, sess, fields[1:])
}

// agentLine handles a line while attached. Control words manage the
// session; anything else is queued on the node.
func (s *Shell) agentLine(ctx context.Context, sess *Session, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "detach", "exit", "quit":
		fmt.Fprintf(s.out, "detached from %s\n", sess.Attached)
		sess.Detach()
		return nil
	case "help":
		s.printAgentHelp()
		return nil
	case "lsnode", "result":
		return s.commands[fields[0]].run(ctx, sess, fields[1:])
	case "shell":
		if len(fields) == 1 {
			sess.Mode = ModeShell
			fmt.Fprintln(s.out, "shell mode, 'exit' to leave")
			return nil
		}
		// Everything after "shell " is one command line for the node
		return s.runRemote(ctx, sess, "shell", []string{strings.TrimSpace(strings.TrimPrefix(line, "shell"))})
	}
	return s.runRemote(ctx, sess, fields[0], fields[1:])
}

// shellLine sends the whole line as a shell command.
func (s *Shell) shellLine(ctx context.Context, sess *Session, line string) error {
	if line == "exit" || line == "quit" {
		sess.Mode = ModeAgent
		return nil
	}
	return s.runRemote(ctx, sess, "shell", []string{line})
}

// runRemote queues a command on the attached node and prints its result.
func (s *Shell) runRemote(ctx context.Context, sess *Session, name string, args []string) error {
	if !sess.IsAttached() {
		return errors.New("no node attached, use 'attach <host>' first")
	}

	id, err := s.api.SetCommand(ctx, sess.Attached, name, args)
	if err != nil {
		return fmt.Errorf("queueing %s: %w", name, err)
	}
	s.logger.Debug("command queued", "host_identifier", sess.Attached, "id", id, "command", name)

	resp, err := s.waitForResponse(ctx, sess.Attached, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, resp)
	return nil
}
