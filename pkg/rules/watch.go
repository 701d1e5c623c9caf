package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current rule set. Readers take a snapshot with Load and
// keep using it for the whole computation.
type Store struct {
	current atomic.Pointer[Rules]
}

// NewStore returns a Store holding r.
func NewStore(r *Rules) *Store {
	s := &Store{}
	s.current.Store(r)
	return s
}

// Load returns the current rule set.
func (s *Store) Load() *Rules {
	return s.current.Load()
}

// Swap replaces the current rule set.
func (s *Store) Swap(r *Rules) {
	s.current.Store(r)
}

// Watch reloads path into s whenever the file changes, until ctx is done.
// A document that fails to compile is logged and the previous rules stay active.
func Watch(ctx context.Context, path string, s *Store, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck // best effort

	// Watch the directory: editors often replace the file rather than write it.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			r, err := Load(abs)
			if err != nil {
				logger.WarnContext(ctx, "rules reload failed, keeping previous rules", "path", abs, "error", err)
				continue
			}
			s.Swap(r)
			logger.InfoContext(ctx, "rules reloaded", "path", abs, "version", r.Version)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "rules watcher error", "error", err)
		}
	}
}
