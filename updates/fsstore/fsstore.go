// Package fsstore keeps updates on disk, one directory per update:
//
//	<root>/<id>/update.json   manifest (updates.Update as JSON)
//	<root>/<id>/...           update content, owned by whoever installs it
//
// Deleting an update removes its whole directory. Watch reports changes to
// the set of update directories so that a reaper can run when new updates
// land.
package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/inspector-proxy-go/updates"
)

// ManifestName is the file holding an update's metadata inside its directory.
const ManifestName = "update.json"

// Option customizes a Store.
type Option func(*Store)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store implements updates.Store on top of a directory tree.
type Store struct {
	root string
	log  *slog.Logger

	// mu serializes read-modify-write of manifests within this process.
	mu sync.Mutex
}

var _ updates.Store = (*Store)(nil)

// New opens the store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("updates directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve updates directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create updates directory: %w", err)
	}

	s := &Store{root: abs, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute directory the store manages.
func (s *Store) Root() string { return s.root }

func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}

func (s *Store) dir(id string) string      { return filepath.Join(s.root, id) }
func (s *Store) manifest(id string) string { return filepath.Join(s.root, id, ManifestName) }

// List reads every manifest under the root. Directories without a readable
// manifest are skipped; they are usually updates still being installed.
func (s *Store) List(ctx context.Context) ([]updates.Update, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read updates directory: %w", err)
	}

	out := make([]updates.Update, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		u, err := s.readManifest(e.Name())
		if err != nil {
			s.log.Debug("skipping update directory", slog.String("dir", e.Name()), slog.String("err", err.Error()))
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*updates.Update, error) {
	if !validID(id) {
		return nil, nil
	}
	u, err := s.readManifest(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) Put(ctx context.Context, u updates.Update) error {
	if !validID(u.ID) {
		return updates.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir(u.ID), 0o755); err != nil {
		return fmt.Errorf("create update directory: %w", err)
	}
	return s.writeManifest(u)
}

func (s *Store) MarkAccessed(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return updates.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.readManifest(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return updates.ErrNotFound
		}
		return err
	}
	u.LastAccessed = at
	return s.writeManifest(*u)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return updates.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.dir(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return updates.ErrNotFound
		}
		return fmt.Errorf("stat update %s: %w", id, err)
	}
	if err := os.RemoveAll(s.dir(id)); err != nil {
		return fmt.Errorf("remove update %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; watchers stop with their context.
func (s *Store) Close() error { return nil }

func (s *Store) readManifest(id string) (*updates.Update, error) {
	data, err := os.ReadFile(s.manifest(id))
	if err != nil {
		return nil, err
	}
	var u updates.Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", id, err)
	}
	if u.ID != id {
		return nil, fmt.Errorf("manifest id %q does not match directory %q", u.ID, id)
	}
	return &u, nil
}

// writeManifest replaces the manifest atomically via rename.
func (s *Store) writeManifest(u updates.Update) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir(u.ID), ManifestName+".*")
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.manifest(u.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}
