package fsstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reports changes to the set of stored updates: update directories
// appearing or disappearing and manifests being written. Signals are
// coalesced; a receiver that falls behind sees one pending signal rather than
// a backlog. The channel is closed when ctx ends or the watcher fails.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(s.root); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", s.root, err)
	}

	// Manifest writes happen inside update directories, so those are watched
	// too.
	entries, err := os.ReadDir(s.root)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("read updates directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.Add(filepath.Join(s.root, e.Name())); err != nil {
				s.log.Debug("fsnotify add dir failed", slog.String("dir", e.Name()), slog.String("err", err.Error()))
			}
		}
	}

	ch := make(chan struct{}, 1)
	notify := func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	go func() {
		defer close(ch)
		defer func() {
			_ = w.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if s.handleEvent(w, ev) {
					notify()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Debug("fsnotify error", slog.String("err", err.Error()))
			}
		}
	}()

	return ch, nil
}

// handleEvent keeps the watch list in sync and reports whether the event
// changes what List would return.
func (s *Store) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) bool {
	parent := filepath.Dir(ev.Name)

	if parent == s.root {
		if ev.Has(fsnotify.Create) {
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				_ = w.Add(ev.Name)
			}
		}
		// Watches on removed directories are dropped by fsnotify itself.
		return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	}

	if filepath.Dir(parent) == s.root && filepath.Base(ev.Name) == ManifestName {
		return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove)
	}
	return false
}
