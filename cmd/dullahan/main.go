// Command dullahan runs the terminal-multiplexer server, or sends a
// status/ping/quit query to an already-running instance.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dullahan"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dullahan",
		Short: "dullahan - browser-attached multi-client terminal multiplexer",
		Long: `dullahan spawns shells in PTYs, drives them through a virtual
terminal, and mirrors their state to any number of browser clients over
WebSocket, with at most one client holding input (master) at a time.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newStatusCmd(), newPingCmd(), newQuitCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cfg := dullahan.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dullahan server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "TCP listen address")
	flags.StringVar(&cfg.TLSCertFile, "tls-cert", cfg.TLSCertFile, "TLS certificate file (enables TLS with --tls-key)")
	flags.StringVar(&cfg.TLSKeyFile, "tls-key", cfg.TLSKeyFile, "TLS private key file")
	flags.BoolVar(&cfg.BindAll, "bind-all", cfg.BindAll, "bind 0.0.0.0 instead of localhost-only defaults")
	flags.IntVar(&cfg.DefaultCols, "default-cols", cfg.DefaultCols, "default pane width for newly created panes")
	flags.IntVar(&cfg.DefaultRows, "default-rows", cfg.DefaultRows, "default pane height for newly created panes")
	flags.StringVar(&cfg.ShellPath, "shell", cfg.ShellPath, "login shell to spawn in new panes")
	return cmd
}

func runServe(cfg *dullahan.Config) error {
	cfg.ApplyEnvOverrides()
	if host, port, err := net.SplitHostPort(cfg.ListenAddr); err == nil && host == "" {
		if cfg.BindAll {
			cfg.ListenAddr = net.JoinHostPort("0.0.0.0", port)
		} else {
			cfg.ListenAddr = net.JoinHostPort("127.0.0.1", port)
		}
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	layout, err := dullahan.NewLayout()
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	cfg.ControlSocketPath = layout.SocketPath
	if err := layout.WritePIDFile(); err != nil {
		logger.Warn("could not write pid file", "error", err)
	}

	logger.Info("starting dullahan", "listen_addr", cfg.ListenAddr, "shell", cfg.ShellPath)

	session, err := dullahan.NewSession(cfg.DefaultCols, cfg.DefaultRows, cfg.ShellPath, logger)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if err := session.Bootstrap(); err != nil {
		return fmt.Errorf("serve: bootstrap: %w", err)
	}

	loop, err := dullahan.NewEventLoop(cfg, session, logger)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	control := dullahan.NewControlServer(cfg.ControlSocketPath, logger,
		func() string { return "ok" },
		loop.RequestShutdown,
	)
	if err := control.Start(); err != nil {
		logger.Warn("control socket unavailable", "error", err)
	}
	defer control.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		loop.RequestShutdown()
	}()

	return loop.Run()
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query a running server's status",
		RunE:  runControlCommand("status"),
	}
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that a running server is responsive",
		RunE:  runControlCommand("ping"),
	}
}

func newQuitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Ask a running server to shut down",
		RunE:  runControlCommand("quit"),
	}
}

func runControlCommand(name string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		layout, err := dullahan.NewLayout()
		if err != nil {
			return err
		}
		reply, err := dullahan.SendControlCommand(layout.SocketPath, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Println(reply)
		return nil
	}
}
