package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"mediabot/internal/core/domain"
	"mediabot/internal/core/ports"
)

// SweepReport counts what one housekeeping pass cleaned up.
type SweepReport struct {
	StaleRecords int
	OutboxFiles  int
	WorkDirs     int
}

// Housekeeper fails records abandoned by a crashed process and removes
// files nobody will deliver.
type Housekeeper struct {
	ledger     ports.Ledger
	files      ports.Sweeper
	staleAfter time.Duration
	logger     *log.Logger
}

// NewHousekeeper creates a Housekeeper.
func NewHousekeeper(ledger ports.Ledger, files ports.Sweeper, staleAfter time.Duration, logger *log.Logger) *Housekeeper {
	return &Housekeeper{ledger: ledger, files: files, staleAfter: staleAfter, logger: logger}
}

// Sweep runs one pass relative to now.
func (h *Housekeeper) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport
	cutoff := now.Add(-h.staleAfter)

	n, err := h.ledger.SweepStale(ctx, cutoff, domain.ReasonTimedOut)
	if err != nil {
		return report, fmt.Errorf("failed to sweep stale records: %w", err)
	}
	report.StaleRecords = n

	if report.OutboxFiles, err = h.files.SweepOutbox(cutoff); err != nil {
		return report, err
	}
	if report.WorkDirs, err = h.files.SweepWork(cutoff); err != nil {
		return report, err
	}

	if report.StaleRecords+report.OutboxFiles+report.WorkDirs > 0 {
		h.logger.Printf("[SWEEP] %d stale records, %d outbox files, %d workspaces removed",
			report.StaleRecords, report.OutboxFiles, report.WorkDirs)
	}
	return report, nil
}

// Run sweeps every interval until ctx is done.
func (h *Housekeeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := h.Sweep(ctx, time.Now()); err != nil {
			h.logger.Printf("[SWEEP] ERROR: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
