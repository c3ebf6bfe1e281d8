package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mediabot/internal/adapters/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot with periodic housekeeping",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func serveRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	bot, err := telegram.NewBot(cfg.Telegram, a.orchestrator, a.store, logger)
	if err != nil {
		return err
	}

	// Records left PENDING by a previous crash are failed on the first pass.
	go a.housekeeper.Run(ctx, cfg.SweepInterval())

	logger.Printf("Serving (size limit %d MiB, duration ceiling %ds, %d concurrent runs)",
		cfg.TransportSizeLimitBytes/(1024*1024), cfg.DurationCeilingSeconds, cfg.Telegram.MaxConcurrent)
	if err := bot.Run(ctx); err != nil {
		return fmt.Errorf("bot stopped: %w", err)
	}
	logger.Println("Shutdown complete")
	return nil
}
