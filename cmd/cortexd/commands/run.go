package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cortexcore/cortexd/pkg/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordinator daemon",
	Long: `Run the coordinator daemon.

Opens the database and file library under the configured data directory,
reconciles artifacts after any unclean shutdown, then serves the HTTP
API and maintains the BLE link until interrupted.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if IsVerbose() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	d, err := daemon.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("daemon init: %w", err)
	}
	return d.Run(ctx)
}
