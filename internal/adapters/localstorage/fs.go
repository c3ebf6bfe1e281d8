package localstorage

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Workspaces implements ports.Workspaces and ports.Sweeper on the local
// filesystem.
//
// Layout under BaseDir:
//
//	work/attempt-<ulid>/   one directory per retrieval attempt
//	outbox/<ulid>-<name>   artifacts waiting to be delivered
type Workspaces struct {
	BaseDir string
}

// NewWorkspaces creates the work and outbox directories under baseDir.
func NewWorkspaces(baseDir string) (*Workspaces, error) {
	w := &Workspaces{BaseDir: baseDir}
	for _, dir := range []string{w.workRoot(), w.OutboxPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return w, nil
}

// Create makes a new exclusive attempt directory. os.Mkdir fails if the
// name already exists, so two attempts can never share one.
func (w *Workspaces) Create(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(w.workRoot(), "attempt-"+newID())
	if err := os.Mkdir(path, 0700); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes a workspace. Removing a missing workspace is not an error.
func (w *Workspaces) Remove(dir string) error {
	if !w.inside(dir, w.workRoot()) {
		return fmt.Errorf("refusing to remove %s: not a workspace", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", dir, err)
	}
	return nil
}

// Keep moves path into the outbox. Rename is tried first; if the outbox
// lives on another filesystem the file is copied.
func (w *Workspaces) Keep(path string) (string, error) {
	dest := filepath.Join(w.OutboxPath(), newID()+"-"+filepath.Base(path))
	if err := os.Rename(path, dest); err == nil {
		return dest, nil
	}
	if err := copyFile(path, dest); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to move %s to outbox: %w", path, err)
	}
	os.Remove(path)
	return dest, nil
}

// SweepOutbox deletes outbox files last modified before cutoff. These are
// artifacts whose consumer never released them.
func (w *Workspaces) SweepOutbox(cutoff time.Time) (int, error) {
	return sweepDir(w.OutboxPath(), cutoff)
}

// SweepWork deletes attempt directories older than cutoff, left behind by
// a crashed process.
func (w *Workspaces) SweepWork(cutoff time.Time) (int, error) {
	return sweepDir(w.workRoot(), cutoff)
}

// OutboxPath returns the directory holding undelivered artifacts.
func (w *Workspaces) OutboxPath() string {
	return filepath.Join(w.BaseDir, "outbox")
}

func (w *Workspaces) workRoot() string {
	return filepath.Join(w.BaseDir, "work")
}

func (w *Workspaces) inside(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

func sweepDir(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func newID() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}
