// ABOUTME: Entry point for prachand-agent, the per-host worker
// ABOUTME: Enrolls with the server, then polls for commands until signaled

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/2389/prachand/internal/agent"
	"github.com/2389/prachand/internal/client"
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
	var showVersion, reset bool

	fl := pflag.NewFlagSet("prachand-agent", pflag.ContinueOnError)
	fl.StringVarP(&configPath, "config", "c", "", "path to agent.toml (default: $PRACHAND_AGENT_CONFIG or $XDG_CONFIG_HOME/prachand/agent.toml)")
	fl.BoolVar(&reset, "reset", false, "forget the saved enrollment and enroll as a new host")
	fl.BoolVar(&showVersion, "version", false, "print the version")
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
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if reset {
		if err := os.Remove(cfg.Agent.StatePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing state file: %w", err)
		}
		logger.Info("saved enrollment removed", "path", cfg.Agent.StatePath)
	}

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
		client.WithHTTPClient(hc),
		client.WithRetry(cfg.Server.RetryAttempts, cfg.Server.retryDelay),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	details := agent.CollectHostDetails(version)
	a := agent.New(agent.Config{
		StatePath:    cfg.Agent.StatePath,
		PollInterval: cfg.Agent.pollInterval,
		Details:      details,
	}, c, agent.DefaultRegistry(details), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting prachand-agent", "version", version, "server", cfg.Server.URL, "state", cfg.Agent.StatePath)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
