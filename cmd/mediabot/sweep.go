package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mediabot/internal/service"
)

var flagPurgeDays int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run housekeeping once and optionally purge old records",
	Args:  cobra.NoArgs,
	RunE:  sweepRun,
}

func init() {
	sweepCmd.Flags().IntVar(&flagPurgeDays, "purge-days", 0, "Also delete finished records older than N days (0 keeps everything)")
}

func sweepRun(cmd *cobra.Command, args []string) error {
	if flagPurgeDays < 0 {
		return fmt.Errorf("--purge-days must not be negative")
	}
	ctx := cmd.Context()

	store, workspaces, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now()
	report, err := service.NewHousekeeper(store, workspaces, cfg.StaleAfter(), logger).Sweep(ctx, now)
	if err != nil {
		return err
	}
	fmt.Printf("Stale records failed: %d\n", report.StaleRecords)
	fmt.Printf("Outbox files removed: %d\n", report.OutboxFiles)
	fmt.Printf("Work dirs removed:    %d\n", report.WorkDirs)

	if flagPurgeDays > 0 {
		n, err := store.Purge(ctx, now.AddDate(0, 0, -flagPurgeDays))
		if err != nil {
			return fmt.Errorf("purging records: %w", err)
		}
		color.Green("Purged %d records older than %d days", n, flagPurgeDays)
	}
	return nil
}
