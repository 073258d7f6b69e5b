// Package remote abstracts the media-server share the posters are placed on.
// Two backends exist: a mounted network filesystem with direct file-copy
// semantics, and a wire-level SMB session. The engine's contract is identical
// either way.
package remote

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotConnected is returned when an operation is attempted outside a
	// connected session.
	ErrNotConnected = errors.New("remote storage not connected")
)

// Entry is one directory listing entry on the remote side.
type Entry struct {
	Name         string
	Size         int64
	IsDir        bool
	CreatedTime  time.Time
	ModifiedTime time.Time
}

// Storage is the remote-storage capability consumed by the sync engine.
// All paths are slash-separated and relative to the share root.
type Storage interface {
	// Connect and Disconnect are paired and scoped; see Session.WithConnection.
	Connect(ctx context.Context) error
	Disconnect() error

	PathExists(path string) (bool, error)
	CreateDirectory(path string) error
	// UploadFile copies a local file to the remote path. It returns false
	// without error when the destination exists and overwrite is unset.
	UploadFile(localPath, remotePath string, overwrite bool) (bool, error)
	ListDirectory(path string) ([]Entry, error)
}

// Session serializes use of a single Storage instance. The remote
// mount/session is one shared resource for the whole process: scheduled
// passes and watcher callbacks must not interleave connect/placement/
// disconnect sequences.
type Session struct {
	storage Storage
	mu      sync.Mutex
}

// NewSession wraps a storage backend in a serialized session.
func NewSession(storage Storage) *Session {
	return &Session{storage: storage}
}

// WithConnection connects, runs fn, and always disconnects, even when fn or
// the connect step fails. Only one caller holds the session at a time.
func (s *Session) WithConnection(ctx context.Context, fn func(Storage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		_ = s.storage.Disconnect()
	}()

	return fn(s.storage)
}
