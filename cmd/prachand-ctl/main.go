// ABOUTME: Entry point for prachand-ctl, the operator console
// ABOUTME: Runs the controller shell interactively or executes one command line

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/2389/prachand/internal/client"
	"github.com/2389/prachand/internal/controller"
	"github.com/2389/prachand/internal/logging"
)

// Version is set at build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var showVersion bool

	fl := pflag.NewFlagSet("prachand-ctl", pflag.ContinueOnError)
	fl.StringVarP(&configPath, "config", "c", "", "path to ctl.toml (default: $PRACHAND_CTL_CONFIG or $XDG_CONFIG_HOME/prachand/ctl.toml)")
	fl.BoolVar(&showVersion, "version", false, "print the version")
	fl.SetInterspersed(false)
	fl.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: prachand-ctl [flags] [command [args...]]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Without a command, starts the interactive shell.")
		fmt.Fprintln(os.Stderr)
		fl.PrintDefaults()
	}
	if err := fl.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.Logging.Level, "text")

	hc, err := client.NewHTTPClient(client.TransportConfig{
		CAFile:             cfg.Server.CAFile,
		InsecureSkipVerify: cfg.Server.InsecureSkipVerify,
		ProxyURL:           cfg.Server.ProxyURL,
		Timeout:            cfg.Server.timeout,
	})
	if err != nil {
		return err
	}
	c, err := client.New(cfg.Server.URL,
		client.WithToken(cfg.Server.Token),
		client.WithHTTPClient(hc),
		client.WithRetry(cfg.Server.RetryAttempts, cfg.Server.retryDelay),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	shell := controller.New(c, controller.Config{
		Prompt:       interactive && fl.NArg() == 0,
		InitialWait:  cfg.Shell.initialWait,
		PollInterval: cfg.Shell.pollInterval,
		WaitTimeout:  cfg.Shell.waitTimeout,
	}, os.Stdout, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if fl.NArg() > 0 {
		return shell.Execute(ctx, &controller.Session{}, strings.Join(fl.Args(), " "))
	}

	if interactive {
		color.New(color.FgCyan).Printf("prachand-ctl %s connected to %s\n", version, cfg.Server.URL)
		fmt.Println("Type 'help' for commands, 'quit' to leave.")
	}
	return shell.Run(ctx, os.Stdin)
}
