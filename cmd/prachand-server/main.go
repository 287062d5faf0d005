// ABOUTME: Entry point for prachand-server, the agent coordination server
// ABOUTME: Subcommands serve the HTTP API, bootstrap controllers, and probe health

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/prachand/internal/client"
	"github.com/2389/prachand/internal/config"
	"github.com/2389/prachand/internal/gateway"
	"github.com/2389/prachand/internal/logging"
)

// Version is set at build time.
var version = "dev"

const banner = `
                       _                     _
 _ __  _ __ __ _  ___| |__   __ _ _ __   __| |
| '_ \| '__/ _' |/ __| '_ \ / _' | '_ \ / _' |
| |_) | | | (_| | (__| | | | (_| | | | | (_| |
| .__/|_|  \__,_|\___|_| |_|\__,_|_| |_|\__,_|
|_|
`

func usage() {
	fmt.Println("Usage: prachand-server <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                        Start the coordination server")
	fmt.Println("  controller add --name NAME   Create a controller and print its token")
	fmt.Println("  health                       Check that the server answers")
	fmt.Println("  version                      Print the version")
	fmt.Println()
	fmt.Println("Every command accepts --config PATH (default: $PRACHAND_CONFIG or")
	fmt.Println("$XDG_CONFIG_HOME/prachand/server.yaml).")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "controller":
		err = runController(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx, os.Args[2:])
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// defaultConfigPath returns $PRACHAND_CONFIG, or server.yaml under the XDG
// config directory.
func defaultConfigPath() string {
	if envPath := os.Getenv("PRACHAND_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "prachand", "server.yaml")
}

// loadConfig reads the config file. A missing file at the default location
// yields the built-in defaults; a missing file named by --config is an error.
func loadConfig(path string) (*config.Config, string, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), "(defaults)", nil
		}
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	fl := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fl.StringVarP(configPath, "config", "c", "", "path to server.yaml")
	return fl
}

func runServe(ctx context.Context, args []string) error {
	var configPath string
	fl := newFlagSet("serve", &configPath)
	if err := fl.Parse(args); err != nil {
		return err
	}

	cfg, source, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	scheme := "http"
	if cfg.Server.TLS.Enabled() {
		scheme = "https"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", source)
	green.Print("    ▶ ")
	fmt.Printf("Listen:    %s://%s\n", scheme, cfg.Server.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s", cfg.Database.Driver)
	if cfg.Database.Driver == config.DriverSQLite {
		gray.Printf(" (%s)", cfg.Database.Path)
	}
	fmt.Println()
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if !cfg.Server.TLS.Enabled() {
		yellow.Println("    ! TLS is off, tokens travel in clear text")
	}
	fmt.Println()

	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting prachand-server", "config", source, "addr", cfg.Server.Addr(), "driver", cfg.Database.Driver)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func runController(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return errors.New("usage: prachand-server controller add --name NAME")
	}

	var configPath, name string
	fl := newFlagSet("controller add", &configPath)
	fl.StringVarP(&name, "name", "n", "", "controller identifier")
	if err := fl.Parse(args[1:]); err != nil {
		return err
	}
	if fl.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fl.Arg(0))
	}
	if name == "" {
		return errors.New("--name flag is required")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.Logging.Level = "warn"
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer gw.Store().Close()

	token, err := gw.AddController(ctx, name)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Fprintf(os.Stderr, "  ✓ Created controller: %s\n", name)
	cyan.Fprintln(os.Stderr, "  Token (store it in the prachand-ctl config):")
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context, args []string) error {
	var configPath string
	var insecure bool
	fl := newFlagSet("health", &configPath)
	fl.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	if err := fl.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	scheme := "http"
	if cfg.Server.TLS.Enabled() {
		scheme = "https"
	}
	hc, err := client.NewHTTPClient(client.TransportConfig{InsecureSkipVerify: insecure, Timeout: 5 * time.Second})
	if err != nil {
		return err
	}
	c, err := client.New(fmt.Sprintf("%s://%s", scheme, cfg.Server.Addr()), client.WithHTTPClient(hc), client.WithRetry(1, 0))
	if err != nil {
		return err
	}

	if err := c.Hello(ctx); err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	fmt.Println("healthy")
	return nil
}
