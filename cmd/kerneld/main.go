package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"evkernel/internal/config"
	"evkernel/internal/kernel"
	"evkernel/internal/logging"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Printf("%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		socketPath string
	)

	cmd := &cobra.Command{
		Use:   "kerneld",
		Short: "evkernel daemon: local microkernel hosting a persistent LLM inference engine",
		Long: fmt.Sprintf(`%s

Runs the kernel's scheduler, event bus, module orchestrator, and inference
engine as a long-lived local process, listening for boundary messages on
the transport selected by kernel.transport (a Unix domain socket by
default, or a loopback WebSocket).`, color.New(color.Bold).Sprint("evkernel")),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath, socketPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the kernel's YAML config file")
	cmd.Flags().StringVar(&socketPath, "socket", "/tmp/evkernel.sock", "Unix domain socket path for the boundary adapter")
	cmd.FParseErrWhitelist.UnknownFlags = true

	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the kernel's version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("evkernel 0.1.0")
		},
	}
}

// resolveConfigPath returns flagValue unchanged if set; otherwise it looks
// for config/config.yaml first relative to the current working directory,
// then alongside the running executable, and falls through to an empty
// path (defaults and env vars only) if neither exists.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}

func runDaemon(configPath, socketPath string) error {
	logger := logging.NewComponentLogger("kerneld")

	lockFile, err := acquireInstanceLock(socketPath)
	if err != nil {
		return fmt.Errorf("another kerneld instance is already running: %w", err)
	}
	defer releaseInstanceLock(lockFile)

	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	transport, err := newTransport(cfg, socketPath, logger)
	if err != nil {
		return fmt.Errorf("start boundary transport: %w", err)
	}

	k := kernel.New(cfg, kernel.Options{Transport: transport}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := k.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize kernel: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("%s received %s, shutting down\n", gray("kerneld:"), sig)
		cancel()
	}()

	fmt.Printf("%s listening on %s (%s transport)\n", green("kerneld:"), transportAddr(cfg, socketPath), transportKind(cfg))
	return k.Start(ctx)
}
