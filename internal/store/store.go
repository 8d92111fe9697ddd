// Package store persists the Story Store and the Run State as one versioned
// snapshot.
//
// Both records are always read together and written together. A commit only
// succeeds when the persisted version still equals the version the snapshot
// was loaded at; otherwise [ErrConflict] is returned and nothing is written.
// An iteration that crashes before committing therefore leaves the previous
// snapshot intact and can simply be re-run.
//
// Two backends are provided: [FileStore] keeps a single YAML document behind
// an advisory file lock, [SQLiteStore] keeps rows in SQLite behind a
// version-guarded update.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"storyloop/internal/runstate"
	"storyloop/internal/story"
)

// Backend names accepted by [Open].
const (
	BackendYAML   = "yaml"
	BackendSQLite = "sqlite"
)

var (
	// ErrConflict means another writer committed since the snapshot was loaded.
	ErrConflict = errors.New("snapshot version conflict")

	// ErrLocked means the store lock could not be acquired in time.
	ErrLocked = errors.New("store is locked by another process")
)

// Snapshot is the unit of persistence: every story plus the run state.
type Snapshot struct {
	// Version is the persisted version this snapshot was loaded at. Commit
	// advances it on success.
	Version int64
	Stories story.Backlog
	Run     *runstate.State
}

// NewSnapshot returns an empty snapshot at version 0.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Stories: story.Backlog{},
		Run:     runstate.New(),
	}
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		Version: s.Version,
		Stories: s.Stories.Clone(),
		Run:     s.Run.Clone(),
	}
}

// Validate checks every story record.
func (s *Snapshot) Validate() error {
	if s.Run == nil {
		return errors.New("snapshot has no run state")
	}
	return s.Stories.Validate()
}

// Store reads and writes snapshots atomically.
type Store interface {
	// Load returns the latest committed snapshot. A store that was never
	// written returns an empty snapshot at version 0.
	Load(ctx context.Context) (*Snapshot, error)

	// Commit writes snap if the persisted version still equals snap.Version,
	// then advances snap.Version.
	Commit(ctx context.Context, snap *Snapshot) error

	Close() error
}

// Open creates the store for the named backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendYAML:
		return NewFileStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown store backend: %q", backend)
}

// Update loads a snapshot, applies fn and commits, retrying on version
// conflicts. fn must be safe to call more than once.
func Update(ctx context.Context, st Store, fn func(*Snapshot) error) error {
	op := func() error {
		snap, err := st.Load(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(snap); err != nil {
			return backoff.Permanent(err)
		}
		err = st.Commit(ctx, snap)
		if err != nil && !errors.Is(err, ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(retryPolicy(), ctx))
}

func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}
