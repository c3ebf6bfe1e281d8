package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediabot/internal/adapters/localstorage"
	"mediabot/internal/adapters/sqlite"
	"mediabot/internal/core/domain"
)

func TestHousekeeperSweep(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ws, err := localstorage.NewWorkspaces(dir)
	if err != nil {
		t.Fatal(err)
	}

	// A run that crashed before finalizing.
	rec, err := store.Open(ctx, videoRequest(), domain.MediaMetadata{Title: "crashed"})
	if err != nil {
		t.Fatal(err)
	}
	orphan := filepath.Join(ws.OutboxPath(), "orphan.mp4")
	os.WriteFile(orphan, []byte("x"), 0644)
	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(orphan, past, past)

	hk := NewHousekeeper(store, ws, time.Hour, discardLogger())

	// Nothing is stale yet.
	report, err := hk.Sweep(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if report.StaleRecords != 0 || report.OutboxFiles != 1 {
		t.Errorf("first sweep = %+v", report)
	}

	report, err = hk.Sweep(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if report.StaleRecords != 1 {
		t.Errorf("second sweep = %+v", report)
	}

	got, _ := store.Record(ctx, rec.ID)
	if got.Outcome != domain.OutcomeFailure || got.ErrorMessage != "timed out" {
		t.Errorf("record = %+v", got)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphaned artifact not removed")
	}
}

type fakeSweeper struct {
	cutoffs []time.Time
	outbox  int
	work    int
	err     error
}

func (f *fakeSweeper) SweepOutbox(cutoff time.Time) (int, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.outbox, f.err
}

func (f *fakeSweeper) SweepWork(cutoff time.Time) (int, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.work, nil
}

func TestHousekeeperUsesSweeperPort(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	files := &fakeSweeper{outbox: 2, work: 3}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	report, err := NewHousekeeper(store, files, time.Hour, discardLogger()).Sweep(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if report.OutboxFiles != 2 || report.WorkDirs != 3 {
		t.Errorf("report = %+v", report)
	}
	want := now.Add(-time.Hour)
	if len(files.cutoffs) != 2 || !files.cutoffs[0].Equal(want) || !files.cutoffs[1].Equal(want) {
		t.Errorf("cutoffs = %v, want two of %v", files.cutoffs, want)
	}

	files.err = errors.New("disk gone")
	if _, err := NewHousekeeper(store, files, time.Hour, discardLogger()).Sweep(ctx, now); !errors.Is(err, files.err) {
		t.Errorf("Sweep() error = %v, want the sweeper's error", err)
	}
}
