// Package main provides the entry point for nmvpn, a NetworkManager
// based VPN client for Linux. It authenticates against the provider
// API, maintains a cached server catalog, and drives a single managed
// VPN connection record through NetworkManager's D-Bus interface.
//
// Usage:
//
//	nmvpn [options]
//
// Environment:
//
//	NetworkManager with the OpenVPN plugin must be available on the
//	system bus for the connection commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/mbeltran/nmvpn/cli"
	"github.com/mbeltran/nmvpn/common"
	"github.com/mbeltran/nmvpn/config"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

var (
	showVersion = flag.Bool("version", false, "Show version and exit")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	showHelp    = flag.Bool("help", false, "Show help message")

	doLogin  = flag.Bool("login", false, "Log in to the provider account")
	doLogout = flag.Bool("logout", false, "Disconnect and log out")

	doConnect  = flag.Bool("connect", false, "Connect to the fastest server")
	serverName = flag.String("server", "", "Connect to a specific server (e.g. PT#1)")
	country    = flag.String("cc", "", "Connect to the fastest server in a country")
	feature    = flag.String("feature", "", "Connect by feature: sc, tor, p2p, stream, ipv6")
	random     = flag.Bool("random", false, "Connect to a random server")
	fastest    = flag.Bool("fastest", false, "Connect to the fastest server")
	protocol   = flag.String("protocol", "", "Transport protocol: udp or tcp")

	doDisconnect = flag.Bool("disconnect", false, "Disconnect the active tunnel")
	doRemove     = flag.Bool("remove", false, "Remove the VPN connection record")
	showStatus   = flag.Bool("status", false, "Show connection status")
	listServers  = flag.Bool("list", false, "List available servers")
	historyCount = flag.Int("history", 0, "Show the last N connection events")
	doRefresh    = flag.Bool("refresh", false, "Force a server list refresh")
	runTUI       = flag.Bool("tui", false, "Browse servers interactively")
)

func main() {
	flag.Parse()

	if *showHelp {
		cli.PrintHelp()
		os.Exit(0)
	}

	if *showVersion {
		fmt.Printf("nmvpn v%s\n", appVersion)
		if buildTime != "unknown" {
			fmt.Printf("  Build:  %s\n", buildTime)
			fmt.Printf("  Commit: %s\n", commitSHA)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logLevel := cfg.LogLevel
	if *verbose {
		logLevel = "debug"
	}
	if err := common.InitLogger(common.LogConfig{
		Level:      logLevel,
		EnableFile: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	defer common.CloseLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	app, err := cli.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, app); err != nil {
		common.LogError("Command failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches the single selected command.
func run(ctx context.Context, app *cli.CLI) error {
	connectRequested := *doConnect || *fastest || *serverName != "" ||
		*country != "" || *feature != "" || *random

	switch {
	case *doLogin:
		return app.Login(ctx)
	case *doLogout:
		return app.Logout(ctx)
	case connectRequested:
		return app.Connect(ctx, cli.ConnectOptions{
			Server:   *serverName,
			Country:  *country,
			Feature:  *feature,
			Random:   *random,
			Protocol: *protocol,
		})
	case *doDisconnect:
		return app.Disconnect(ctx)
	case *doRemove:
		return app.Remove(ctx)
	case *showStatus:
		return app.Status(ctx)
	case *listServers:
		return app.List(ctx)
	case *historyCount > 0:
		return app.History(*historyCount)
	case *doRefresh:
		return app.Refresh(ctx)
	case *runTUI:
		return app.Browse(ctx, *protocol)
	default:
		cli.PrintHelp()
		return nil
	}
}

// setupSignalHandler configures graceful shutdown on SIGINT/SIGTERM.
// When a signal is received, it cancels the context so pending
// NetworkManager and API calls return.
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		common.LogInfo("Received signal %v, shutting down...", sig)
		cancel()
	}()
}
