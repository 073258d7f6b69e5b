// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/postersync/postersync/internal/naming"
)

// Version is the application version, overridden at build time.
var Version = "dev"

// Media types in processing order. Sync passes visit types in this order.
const (
	MediaTypeMovies      = "movies"
	MediaTypeTV          = "tv"
	MediaTypeCollections = "collections"
)

// mediaTypeOrder fixes the pass ordering across configured media types.
var mediaTypeOrder = []string{MediaTypeMovies, MediaTypeTV, MediaTypeCollections}

// Remote storage modes.
const (
	RemoteModeMount = "mount"
	RemoteModeSMB   = "smb"
)

// Config holds all application configuration.
type Config struct {
	Local   LocalConfig   `mapstructure:"local" yaml:"local"`
	Remote  RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Intake  IntakeConfig  `mapstructure:"intake" yaml:"intake"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// LocalConfig describes the local poster tree.
type LocalConfig struct {
	BasePath string            `mapstructure:"base_path" yaml:"base_path"`
	Folders  map[string]string `mapstructure:"folders" yaml:"folders"`
}

// RemoteConfig describes the media-server share and how to reach it.
type RemoteConfig struct {
	Mode       string            `mapstructure:"mode" yaml:"mode"` // "mount" or "smb"
	Server     string            `mapstructure:"server" yaml:"server"`
	Share      string            `mapstructure:"share" yaml:"share"`
	Username   string            `mapstructure:"username" yaml:"username"`
	Password   string            `mapstructure:"password" yaml:"password"`
	Domain     string            `mapstructure:"domain" yaml:"domain"`
	MountPoint string            `mapstructure:"mount_point" yaml:"mount_point"`
	Paths      map[string]string `mapstructure:"paths" yaml:"paths"`
}

// SyncConfig holds the matching and placement knobs.
type SyncConfig struct {
	PosterExtensions     []string      `mapstructure:"poster_extensions" yaml:"poster_extensions"`
	PosterNames          []string      `mapstructure:"poster_names" yaml:"poster_names"`
	SeasonPosterPatterns []string      `mapstructure:"season_poster_patterns" yaml:"season_poster_patterns"`
	TVSeasonPosters      bool          `mapstructure:"tv_season_posters" yaml:"tv_season_posters"`
	PosterInMovieFolder  bool          `mapstructure:"poster_in_movie_folder" yaml:"poster_in_movie_folder"`
	OverwriteExisting    bool          `mapstructure:"overwrite_existing" yaml:"overwrite_existing"`
	MinFileSize          int64         `mapstructure:"min_file_size" yaml:"min_file_size"`
	MaxFileSize          int64         `mapstructure:"max_file_size" yaml:"max_file_size"`
	SyncInterval         time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	WatchFolders         bool          `mapstructure:"watch_folders" yaml:"watch_folders"`
}

// IntakeConfig describes the inbox for newly dropped posters and archives.
type IntakeConfig struct {
	Path        string        `mapstructure:"path" yaml:"path"`
	SeasonToken string        `mapstructure:"season_token" yaml:"season_token"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig holds the status HTTP endpoint configuration.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// HistoryConfig holds the placement history database configuration.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.postersync")
	}

	v.SetEnvPrefix("POSTERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Local: LocalConfig{
			BasePath: "/posters",
			Folders: map[string]string{
				MediaTypeMovies:      "movies",
				MediaTypeTV:          "tv",
				MediaTypeCollections: "collections",
			},
		},
		Remote: RemoteConfig{
			Mode:       RemoteModeMount,
			MountPoint: "/mnt/media",
			Paths: map[string]string{
				MediaTypeMovies:      "movies",
				MediaTypeTV:          "tv",
				MediaTypeCollections: "collections",
			},
		},
		Sync: SyncConfig{
			PosterExtensions:     append([]string(nil), naming.DefaultExtensions...),
			PosterNames:          append([]string(nil), naming.DefaultKeywords...),
			SeasonPosterPatterns: append([]string(nil), naming.DefaultSeasonPatterns...),
			TVSeasonPosters:      true,
			MinFileSize:          1024,
			MaxFileSize:          10 * 1024 * 1024,
			SyncInterval:         5 * time.Minute,
			WatchFolders:         true,
		},
		Intake: IntakeConfig{
			Path:        "intake",
			SeasonToken: "season",
			Interval:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8790,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          "./data/postersync.db",
			RetentionDays: 30,
		},
	}
}

func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("local.base_path", def.Local.BasePath)
	v.SetDefault("local.folders", def.Local.Folders)

	v.SetDefault("remote.mode", def.Remote.Mode)
	v.SetDefault("remote.server", "")
	v.SetDefault("remote.share", "")
	v.SetDefault("remote.username", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.domain", "")
	v.SetDefault("remote.mount_point", def.Remote.MountPoint)
	v.SetDefault("remote.paths", def.Remote.Paths)

	v.SetDefault("sync.poster_extensions", def.Sync.PosterExtensions)
	v.SetDefault("sync.poster_names", def.Sync.PosterNames)
	v.SetDefault("sync.season_poster_patterns", def.Sync.SeasonPosterPatterns)
	v.SetDefault("sync.tv_season_posters", def.Sync.TVSeasonPosters)
	v.SetDefault("sync.poster_in_movie_folder", def.Sync.PosterInMovieFolder)
	v.SetDefault("sync.overwrite_existing", def.Sync.OverwriteExisting)
	v.SetDefault("sync.min_file_size", def.Sync.MinFileSize)
	v.SetDefault("sync.max_file_size", def.Sync.MaxFileSize)
	v.SetDefault("sync.sync_interval", def.Sync.SyncInterval)
	v.SetDefault("sync.watch_folders", def.Sync.WatchFolders)

	v.SetDefault("intake.path", def.Intake.Path)
	v.SetDefault("intake.season_token", def.Intake.SeasonToken)
	v.SetDefault("intake.interval", def.Intake.Interval)

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("server.enabled", def.Server.Enabled)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)

	v.SetDefault("history.enabled", def.History.Enabled)
	v.SetDefault("history.path", def.History.Path)
	v.SetDefault("history.retention_days", def.History.RetentionDays)
}

// Validate checks required settings. Failures here are fatal at startup;
// everything else degrades to per-pass warnings.
func (c *Config) Validate() error {
	var missing []string

	if c.Local.BasePath == "" {
		missing = append(missing, "local.base_path")
	}
	if len(c.Local.Folders) == 0 {
		missing = append(missing, "local.folders")
	}

	switch c.Remote.Mode {
	case RemoteModeMount:
		if c.Remote.MountPoint == "" {
			missing = append(missing, "remote.mount_point")
		}
	case RemoteModeSMB:
		for key, val := range map[string]string{
			"remote.server":   c.Remote.Server,
			"remote.share":    c.Remote.Share,
			"remote.username": c.Remote.Username,
			"remote.password": c.Remote.Password,
		} {
			if val == "" {
				missing = append(missing, key)
			}
		}
	default:
		return fmt.Errorf("invalid remote.mode %q (expected %q or %q)", c.Remote.Mode, RemoteModeMount, RemoteModeSMB)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration keys: %s", strings.Join(missing, ", "))
	}

	if c.Sync.MinFileSize > c.Sync.MaxFileSize {
		return fmt.Errorf("sync.min_file_size (%d) exceeds sync.max_file_size (%d)", c.Sync.MinFileSize, c.Sync.MaxFileSize)
	}

	return nil
}

// MediaTypes returns the configured media types in processing order.
func (c *Config) MediaTypes() []string {
	types := make([]string, 0, len(c.Local.Folders))
	for _, mt := range mediaTypeOrder {
		if _, ok := c.Local.Folders[mt]; ok {
			types = append(types, mt)
		}
	}
	return types
}

// LocalFolder returns the resolved local folder for a media type.
func (c *Config) LocalFolder(mediaType string) (string, bool) {
	sub, ok := c.Local.Folders[mediaType]
	if !ok {
		return "", false
	}
	return joinLocal(c.Local.BasePath, sub), true
}

// RemotePath returns the configured remote base path for a media type.
func (c *Config) RemotePath(mediaType string) (string, bool) {
	p, ok := c.Remote.Paths[mediaType]
	return p, ok
}

// UnmatchedDir returns the unmatched holding area under the intake root.
func (c *IntakeConfig) UnmatchedDir() string {
	return joinLocal(c.Path, "unmatched")
}

// WriteDefault writes a default config file to path, refusing to overwrite
// an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	header := []byte("# postersync configuration\n# Values may be overridden with POSTERSYNC_* environment variables.\n\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

func joinLocal(base, sub string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Trim(sub, "/")
}
