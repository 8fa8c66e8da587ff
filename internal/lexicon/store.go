package lexicon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active lexicon Set and allows it to be replaced at runtime
// without locking readers.
type Store struct {
	current atomic.Pointer[Set]
	logger  *slog.Logger
}

// NewStore creates a store serving the given set.
func NewStore(set *Set, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger.With("component", "lexicon")}
	s.current.Store(set)
	return s
}

// Load returns the active set.
func (s *Store) Load() *Set {
	return s.current.Load()
}

// Swap replaces the active set. Nil sets are ignored.
func (s *Store) Swap(set *Set) {
	if set == nil {
		return
	}
	s.current.Store(set)
}

// Lexicon returns the active lexicon for a locale.
func (s *Store) Lexicon(locale string) *Lexicon {
	return s.Load().For(locale)
}

// Reload re-reads path and swaps the set in. On failure the previous set stays
// active and the error is returned.
func (s *Store) Reload(path, defaultLocale string) error {
	set, err := LoadFile(path, defaultLocale)
	if err != nil {
		return err
	}
	s.Swap(set)
	s.logger.Info("lexicon reloaded", "path", path, "locales", set.Locales())
	return nil
}

// Watch reloads the lexicon whenever path changes. The parent directory is
// watched so that editors which replace the file by rename are handled. Watch
// blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, path, defaultLocale string) error {
	if path == "" {
		return errors.New("lexicon: watch requires a file path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("lexicon: resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("lexicon: new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("lexicon: watch %s: %w", filepath.Dir(abs), err)
	}
	s.logger.Info("watching lexicon file", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(abs, defaultLocale); err != nil {
				s.logger.Warn("lexicon reload failed, keeping previous terms", "path", abs, "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("lexicon watcher error", "error", err)
		}
	}
}
