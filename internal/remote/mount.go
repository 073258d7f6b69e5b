package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/postersync/postersync/internal/pathutil"
)

// MountedFilesystem is a Storage backed by a network share already mounted
// on the local filesystem. All operations are direct file operations rooted
// at the mount point.
type MountedFilesystem struct {
	mountPoint string
	connected  bool
	logger     zerolog.Logger
}

// NewMountedFilesystem creates a mount-backed storage rooted at mountPoint.
func NewMountedFilesystem(mountPoint string, logger zerolog.Logger) *MountedFilesystem {
	return &MountedFilesystem{
		mountPoint: mountPoint,
		logger:     logger.With().Str("component", "remote").Str("mode", "mount").Logger(),
	}
}

// Connect verifies the mount point is present and readable. Mounting itself
// is the host's responsibility (fstab, systemd mount, Docker volume).
func (m *MountedFilesystem) Connect(_ context.Context) error {
	info, err := os.Stat(m.mountPoint)
	if err != nil {
		return fmt.Errorf("mount point %s not available: %w", m.mountPoint, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point %s is not a directory", m.mountPoint)
	}
	m.connected = true
	m.logger.Debug().Str("mountPoint", m.mountPoint).Msg("Mount point available")
	return nil
}

// Disconnect marks the session closed. The mount stays in place.
func (m *MountedFilesystem) Disconnect() error {
	m.connected = false
	return nil
}

// PathExists checks if a remote path exists under the mount point.
func (m *MountedFilesystem) PathExists(remotePath string) (bool, error) {
	if !m.connected {
		return false, ErrNotConnected
	}
	_, err := os.Stat(m.fullPath(remotePath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateDirectory creates a directory (and parents) under the mount point.
func (m *MountedFilesystem) CreateDirectory(remotePath string) error {
	if !m.connected {
		return ErrNotConnected
	}
	if err := os.MkdirAll(m.fullPath(remotePath), 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", remotePath, err)
	}
	return nil
}

// UploadFile copies a local file onto the share. An existing destination is
// left untouched unless overwrite is set; skipping is not an error.
func (m *MountedFilesystem) UploadFile(localPath, remotePath string, overwrite bool) (bool, error) {
	if !m.connected {
		return false, ErrNotConnected
	}

	dest := m.fullPath(remotePath)

	if _, err := os.Stat(dest); err == nil && !overwrite {
		m.logger.Debug().Str("remotePath", remotePath).Msg("Remote file exists, skipping")
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("create parent directory: %w", err)
	}

	if err := copyFile(localPath, dest); err != nil {
		return false, fmt.Errorf("upload %s: %w", remotePath, err)
	}

	m.logger.Info().Str("local", localPath).Str("remote", remotePath).Msg("Uploaded file")
	return true, nil
}

// ListDirectory lists the entries directly under a remote path. A missing
// path yields an empty listing.
func (m *MountedFilesystem) ListDirectory(remotePath string) ([]Entry, error) {
	if !m.connected {
		return nil, ErrNotConnected
	}

	entries, err := os.ReadDir(m.fullPath(remotePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list directory %s: %w", remotePath, err)
	}

	result := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		e := Entry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil {
			e.Size = info.Size()
			e.ModifiedTime = info.ModTime()
		}
		result = append(result, e)
	}
	return result, nil
}

func (m *MountedFilesystem) fullPath(remotePath string) string {
	return filepath.Join(m.mountPoint, filepath.FromSlash(pathutil.TrimRemoteRoot(remotePath)))
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
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
