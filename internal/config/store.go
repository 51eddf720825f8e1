package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store holds the current configuration snapshot and swaps it atomically on
// reload. Readers call Snapshot per operation and see a consistent whole,
// never a partially-updated structure.
type Store struct {
	current atomic.Pointer[Config]
	path    string
	log     *zap.Logger
}

// NewStore creates a store seeded with cfg. path is the file watched for hot
// reload; it may be empty when reload is not wanted.
func NewStore(cfg *Config, path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{path: path, log: log}
	s.current.Store(cfg)
	return s
}

// Snapshot returns the current immutable configuration.
func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Reload re-reads the config file and swaps in the new snapshot. On any
// error the previous snapshot stays in effect.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("no config path to reload from")
	}
	cfg, err := Load(s.path)
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	s.current.Store(cfg)
	s.log.Info("configuration reloaded", zap.String("path", s.path))
	return nil
}

// Watch blocks until ctx is done, reloading the store whenever the config
// file is written or recreated. Editors replace files rather than writing in
// place, so the watch covers the parent directory.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("no config path to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.log.Warn("config reload failed, keeping previous snapshot",
					zap.String("path", s.path),
					zap.Error(err),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("config watcher error", zap.Error(err))
		}
	}
}
