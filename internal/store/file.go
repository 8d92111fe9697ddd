package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"storyloop/internal/runstate"
	"storyloop/internal/story"
)

// DefaultFilePath is the YAML store location relative to the project root.
const DefaultFilePath = ".storyloop/state.yaml"

// document is the on-disk layout of the YAML store.
type document struct {
	Version  int64           `yaml:"version"`
	Stories  []*story.Story  `yaml:"stories"`
	RunState *runstate.State `yaml:"run_state"`
}

// FileStore keeps the snapshot in one YAML file.
//
// Writers serialise on an advisory lock over a sibling file and replace the document with a
// temp-file rename, so readers never observe a partial write.
type FileStore struct {
	path string

	// LockTimeout bounds how long Commit waits for the store lock.
	LockTimeout time.Duration
}

// NewFileStore creates a store for the YAML file at path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFilePath
	}
	return &FileStore{path: path, LockTimeout: 10 * time.Second}
}

// Path returns the document path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the current snapshot. A missing file yields an empty snapshot.
func (f *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.read()
}

func (f *FileStore) read() (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store: %w", err)
	}

	snap := NewSnapshot()
	snap.Version = doc.Version
	if doc.RunState != nil {
		snap.Run = doc.RunState
		snap.Run.Normalize()
	}
	for _, s := range doc.Stories {
		if s == nil {
			continue
		}
		if _, dup := snap.Stories[s.ID]; dup {
			return nil, fmt.Errorf("failed to parse store: duplicate story id %s", s.ID)
		}
		snap.Stories[s.ID] = s
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("failed to parse store: %w", err)
	}
	return snap, nil
}

// Commit writes snap if no other writer committed since it was loaded.
func (f *FileStore) Commit(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	unlock, err := f.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := f.read()
	if err != nil {
		return err
	}
	if current.Version != snap.Version {
		return fmt.Errorf("%w: loaded version %d, store is at %d", ErrConflict, snap.Version, current.Version)
	}

	doc := document{
		Version:  snap.Version + 1,
		Stories:  snap.Stories.Sorted(),
		RunState: snap.Run,
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	// Write to temp, then rename.
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write store: %w", err)
	}

	snap.Version = doc.Version
	return nil
}

// Close is a no-op; the file store holds no handles between calls.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) lockPath() string {
	return f.path + ".lock"
}

// lock takes an advisory lock on the sibling lock file, retrying with
// exponential backoff until LockTimeout elapses. The kernel drops the lock if
// the process dies, so a leftover file never blocks later writers.
func (f *FileStore) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = f.LockTimeout

	fl := flock.New(f.lockPath())
	acquire := func() error {
		locked, err := fl.TryLock()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to acquire store lock: %w", err))
		}
		if !locked {
			return ErrLocked
		}
		return nil
	}

	if err := backoff.Retry(acquire, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, fl.Path())
		}
		return nil, err
	}
	return func() { _ = fl.Unlock() }, nil
}
