// Package sqlite persists attempt records and chat users in a single
// SQLite database using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mediabot/internal/core/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	platform_id    TEXT    NOT NULL UNIQUE,
	username       TEXT    NOT NULL DEFAULT '',
	first_name     TEXT    NOT NULL DEFAULT '',
	last_name      TEXT    NOT NULL DEFAULT '',
	language_code  TEXT    NOT NULL DEFAULT '',
	preferred_kind TEXT    NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	last_active    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS downloads (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	url             TEXT    NOT NULL,
	title           TEXT    NOT NULL DEFAULT '',
	kind            TEXT    NOT NULL,
	started_at      INTEGER NOT NULL,
	completed_at    INTEGER,
	outcome         TEXT    NOT NULL DEFAULT 'PENDING',
	file_size_bytes INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_downloads_user    ON downloads(user_id);
CREATE INDEX IF NOT EXISTS idx_downloads_pending ON downloads(outcome, started_at);
`

// Store implements ports.Ledger and ports.Directory.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes every write; WAL still lets the file be
	// read by other processes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// upsertUser creates the user row for platformID if missing, bumps its
// last_active and returns the row id.
func upsertUser(ctx context.Context, tx *sql.Tx, platformID string, now time.Time) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO users (platform_id, created_at, last_active) VALUES (?, ?, ?)
		ON CONFLICT(platform_id) DO UPDATE SET last_active = excluded.last_active
		RETURNING id`,
		platformID, millis(now), millis(now),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to touch user %s: %w", platformID, err)
	}
	return id, nil
}

// Open inserts a PENDING record for req and bumps the owner's last-active
// timestamp in one transaction.
func (s *Store) Open(ctx context.Context, req domain.RetrievalRequest, meta domain.MediaMetadata) (*domain.AttemptRecord, error) {
	if req.RequesterID == "" {
		return nil, errors.New("request has no requester")
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	userID, err := upsertUser(ctx, tx, req.RequesterID, now)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO downloads (user_id, url, title, kind, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, req.URL, meta.Title, string(req.Kind), millis(now), string(domain.OutcomePending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert attempt record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit attempt record: %w", err)
	}

	return &domain.AttemptRecord{
		ID:        id,
		OwnerID:   userID,
		SourceURL: req.URL,
		Title:     meta.Title,
		Kind:      req.Kind,
		StartedAt: fromMillis(millis(now)),
		Outcome:   domain.OutcomePending,
	}, nil
}

// Finalize applies the terminal transition of rec exactly once. The
// update only matches PENDING rows, so a second call affects nothing and
// reports domain.ErrAlreadyFinalized.
func (s *Store) Finalize(ctx context.Context, rec *domain.AttemptRecord, f domain.Finalization) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if rec.Outcome.IsTerminal() {
		return fmt.Errorf("record %d: %w", rec.ID, domain.ErrAlreadyFinalized)
	}
	now := s.now().UTC()
	msg := domain.Excerpt(f.ErrorMessage)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE downloads
		SET outcome = ?, completed_at = ?, file_size_bytes = ?, error_message = ?
		WHERE id = ? AND outcome = ?`,
		string(f.Outcome), millis(now), f.FileSizeBytes, msg, rec.ID, string(domain.OutcomePending),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize record %d: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM downloads WHERE id = ?`, rec.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("record %d: %w", rec.ID, domain.ErrRecordNotFound)
		}
		return fmt.Errorf("record %d: %w", rec.ID, domain.ErrAlreadyFinalized)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET last_active = ? WHERE id = ?`, millis(now), rec.OwnerID); err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit finalization: %w", err)
	}

	completed := fromMillis(millis(now))
	rec.CompletedAt = &completed
	rec.Outcome = f.Outcome
	rec.FileSizeBytes = f.FileSizeBytes
	rec.ErrorMessage = msg
	return nil
}

// SweepStale fails every PENDING record that started before cutoff.
func (s *Store) SweepStale(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads
		SET outcome = ?, completed_at = ?, error_message = ?
		WHERE outcome = ? AND started_at < ?`,
		string(domain.OutcomeFailure), millis(s.now()), domain.Excerpt(reason),
		string(domain.OutcomePending), millis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale records: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Purge deletes terminal records completed before cutoff. PENDING rows
// are never purged.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM downloads WHERE outcome != ? AND completed_at < ?`,
		string(domain.OutcomePending), millis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge records: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Record loads one attempt record by id.
func (s *Store) Record(ctx context.Context, id int64) (*domain.AttemptRecord, error) {
	var (
		rec       domain.AttemptRecord
		kind      string
		outcome   string
		started   int64
		completed sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, url, title, kind, started_at, completed_at, outcome, file_size_bytes, error_message
		FROM downloads WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.OwnerID, &rec.SourceURL, &rec.Title, &kind, &started, &completed,
		&outcome, &rec.FileSizeBytes, &rec.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, domain.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %d: %w", id, err)
	}
	rec.Kind = domain.Kind(kind)
	rec.Outcome = domain.Outcome(outcome)
	rec.StartedAt = fromMillis(started)
	if completed.Valid {
		t := fromMillis(completed.Int64)
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// CountPending returns how many records are still PENDING.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM downloads WHERE outcome = ?`, string(domain.OutcomePending),
	).Scan(&n)
	return n, err
}
