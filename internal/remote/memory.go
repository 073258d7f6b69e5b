package remote

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/postersync/postersync/internal/pathutil"
)

// Memory is an in-memory Storage used by tests. It records every write so
// dry-run behavior can be asserted.
type Memory struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte

	Connected  bool
	WriteCalls int
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{
		dirs:  map[string]bool{"": true},
		files: make(map[string][]byte),
	}
}

// MkDir pre-creates a directory (and parents) for test setup.
func (m *Memory) MkDir(remotePath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(normRemote(remotePath))
}

// PutFile pre-creates a file for test setup.
func (m *Memory) PutFile(remotePath string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := normRemote(remotePath)
	m.mkdirAllLocked(path.Dir(p))
	m.files[p] = data
}

// HasFile reports whether a file exists at the remote path.
func (m *Memory) HasFile(remotePath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[normRemote(remotePath)]
	return ok
}

// FilePaths returns all file paths, sorted, for assertions.
func (m *Memory) FilePaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *Memory) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connected = true
	return nil
}

func (m *Memory) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connected = false
	return nil
}

func (m *Memory) PathExists(remotePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := normRemote(remotePath)
	if m.dirs[p] {
		return true, nil
	}
	_, ok := m.files[p]
	return ok, nil
}

func (m *Memory) CreateDirectory(remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(normRemote(remotePath))
	return nil
}

func (m *Memory) UploadFile(localPath, remotePath string, overwrite bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := normRemote(remotePath)
	if _, exists := m.files[p]; exists && !overwrite {
		return false, nil
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return false, err
	}

	m.mkdirAllLocked(path.Dir(p))
	m.files[p] = data
	m.WriteCalls++
	return true, nil
}

func (m *Memory) ListDirectory(remotePath string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := normRemote(remotePath)
	if base != "" && !m.dirs[base] {
		return nil, nil
	}

	seen := make(map[string]Entry)
	for dir := range m.dirs {
		if name, ok := childName(base, dir); ok {
			seen[name] = Entry{Name: name, IsDir: true, ModifiedTime: time.Now()}
		}
	}
	for file, data := range m.files {
		if name, ok := childName(base, file); ok {
			if _, isDir := seen[name]; !isDir {
				seen[name] = Entry{Name: name, Size: int64(len(data)), ModifiedTime: time.Now()}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, seen[name])
	}
	return entries, nil
}

func (m *Memory) mkdirAllLocked(p string) {
	for p != "" && p != "." {
		m.dirs[p] = true
		p = path.Dir(p)
		if p == "." {
			break
		}
	}
	m.dirs[""] = true
}

func normRemote(p string) string {
	cleaned := path.Clean(pathutil.TrimRemoteRoot(p))
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// childName returns the immediate child segment of p under base, if p is a
// strict descendant of base.
func childName(base, p string) (string, bool) {
	if p == base || p == "" {
		return "", false
	}
	var rel string
	if base == "" {
		rel = p
	} else {
		if !strings.HasPrefix(p, base+"/") {
			return "", false
		}
		rel = strings.TrimPrefix(p, base+"/")
	}
	if idx := strings.Index(rel, "/"); idx >= 0 {
		rel = rel[:idx]
	}
	return rel, rel != ""
}
