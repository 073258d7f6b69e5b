// Package pathutil provides path helpers shared by local and remote file
// handling.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath converts all path separators to forward slashes.
// Go's os.Open/os.Stat accept forward slashes on all platforms.
func NormalizePath(p string) string {
	return filepath.ToSlash(p)
}

// JoinRemote joins remote path elements with forward slashes regardless of
// the host platform. Remote paths are always slash-separated; the storage
// backends convert to their native separator as needed.
func JoinRemote(elem ...string) string {
	return path.Join(elem...)
}

// TrimRemoteRoot strips leading separators from a remote path so it can be
// resolved relative to a share or mount root.
func TrimRemoteRoot(p string) string {
	return strings.TrimLeft(NormalizePath(p), "/")
}
