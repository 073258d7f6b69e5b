package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// An explicitly named but missing file is an error; loading with no file
	// at all falls back to defaults.
	require.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, RemoteModeMount, cfg.Remote.Mode)
	assert.Equal(t, []string{".jpg", ".jpeg", ".png"}, cfg.Sync.PosterExtensions)
	assert.Equal(t, []string{"poster", "folder", "cover"}, cfg.Sync.PosterNames)
	assert.True(t, cfg.Sync.TVSeasonPosters)
	assert.False(t, cfg.Sync.OverwriteExisting)
	assert.Equal(t, int64(1024), cfg.Sync.MinFileSize)
	assert.Equal(t, int64(10*1024*1024), cfg.Sync.MaxFileSize)
	assert.Equal(t, 5*time.Minute, cfg.Sync.SyncInterval)
	assert.NotEmpty(t, cfg.Sync.SeasonPosterPatterns)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
local:
  base_path: /data/posters
  folders:
    movies: film
remote:
  mode: smb
  server: nas.local
  share: media
  username: poster
  password: secret
sync:
  overwrite_existing: true
  sync_interval: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/posters", cfg.Local.BasePath)
	assert.Equal(t, "film", cfg.Local.Folders["movies"])
	assert.Equal(t, RemoteModeSMB, cfg.Remote.Mode)
	assert.Equal(t, "nas.local", cfg.Remote.Server)
	assert.True(t, cfg.Sync.OverwriteExisting)
	assert.Equal(t, 10*time.Minute, cfg.Sync.SyncInterval)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("POSTERSYNC_REMOTE_PASSWORD", "from-env")
	t.Setenv("POSTERSYNC_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Remote.Password)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing base path",
			mutate:  func(c *Config) { c.Local.BasePath = "" },
			wantErr: "local.base_path",
		},
		{
			name:    "missing folders",
			mutate:  func(c *Config) { c.Local.Folders = nil },
			wantErr: "local.folders",
		},
		{
			name:    "mount mode requires mount point",
			mutate:  func(c *Config) { c.Remote.MountPoint = "" },
			wantErr: "remote.mount_point",
		},
		{
			name: "smb mode requires credentials",
			mutate: func(c *Config) {
				c.Remote.Mode = RemoteModeSMB
				c.Remote.Server = "nas.local"
				c.Remote.Share = "media"
			},
			wantErr: "remote.username",
		},
		{
			name:    "invalid remote mode",
			mutate:  func(c *Config) { c.Remote.Mode = "ftp" },
			wantErr: "invalid remote.mode",
		},
		{
			name: "inverted size bounds",
			mutate: func(c *Config) {
				c.Sync.MinFileSize = 100
				c.Sync.MaxFileSize = 10
			},
			wantErr: "min_file_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateMissingKeysSorted(t *testing.T) {
	cfg := Default()
	cfg.Remote.Mode = RemoteModeSMB

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(),
		"remote.password, remote.server, remote.share, remote.username")
}

func TestMediaTypesOrder(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"movies", "tv", "collections"}, cfg.MediaTypes())

	cfg.Local.Folders = map[string]string{"collections": "c", "movies": "m"}
	assert.Equal(t, []string{"movies", "collections"}, cfg.MediaTypes())
}

func TestLocalFolder(t *testing.T) {
	cfg := Default()
	cfg.Local.BasePath = "/posters/"
	cfg.Local.Folders["movies"] = "/movies"

	folder, ok := cfg.LocalFolder("movies")
	require.True(t, ok)
	assert.Equal(t, "/posters/movies", folder)

	_, ok = cfg.LocalFolder("music")
	assert.False(t, ok)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	// Refuses to overwrite.
	require.Error(t, WriteDefault(path))
}
