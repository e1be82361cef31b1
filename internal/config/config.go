package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete chronicle configuration
type Config struct {
	// Root is the store root directory holding the queues, the versioned
	// working tree, and the backup replica.
	// If empty, defaults to ~/.chronicle. Supports ~ for home directory
	// expansion.
	Root string `mapstructure:"root"`

	// ProcessInterval is how often the daemon drains the operation queue
	// (default: 10s, minimum: 1s)
	ProcessInterval time.Duration `mapstructure:"process_interval"`
	// FlushInterval is how often raw journal entries are scheduled for
	// aggregation (default: 2m, allowed: 60s-300s)
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// LockTimeout bounds how long one processing cycle waits for the
	// store lock before deferring (default: 1s)
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// Watch enables filesystem notification on the operation queue so
	// requests are processed without waiting for the next poll (default: false)
	Watch bool `mapstructure:"watch"`
	// BucketMinutes is the report bucket width in minutes (default: 60,
	// must divide a day evenly)
	BucketMinutes int `mapstructure:"bucket_minutes"`
	// ExportCommand is a shell command run during housekeeping, after the
	// backup push. Empty disables the export hook (default: "")
	ExportCommand string `mapstructure:"export_command"`

	Git GitConfig `mapstructure:"git"`
	Log LogConfig `mapstructure:"log"`
}

// GitConfig controls the identity used for store commits
type GitConfig struct {
	// AuthorName is the commit author name (default: "chronicle")
	AuthorName string `mapstructure:"author_name"`
	// AuthorEmail is the commit author email (default: "chronicle@localhost")
	AuthorEmail string `mapstructure:"author_email"`
}

// LogConfig controls logging behavior
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path. If empty, defaults to chronicle.log
	// under the store root.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file rotates (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// Default returns the built-in configuration, the one a fresh install runs
// with before any config file exists.
func Default() *Config {
	return &Config{
		Root:            "", // Empty means use default: ~/.chronicle
		ProcessInterval: 10 * time.Second,
		FlushInterval:   2 * time.Minute,
		LockTimeout:     1 * time.Second,
		Watch:           false,
		BucketMinutes:   60,
		ExportCommand:   "",
		Git: GitConfig{
			AuthorName:  "chronicle",
			AuthorEmail: "chronicle@localhost",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "", // Empty means use default: <root>/chronicle.log
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// ResolveRoot returns the resolved store root path.
// If Root is empty, it returns ~/.chronicle. If Root starts with ~, it
// expands to the user's home directory.
func (c *Config) ResolveRoot() string {
	if c.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".chronicle"
		}
		return filepath.Join(home, ".chronicle")
	}
	return expandHome(c.Root)
}

// expandHome rewrites a leading ~ to the user's home directory. Paths are
// returned unchanged when the home directory cannot be determined.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// LogFile returns the resolved log file path.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return c.Layout().LogFile()
}

// Layout returns the directory layout under the resolved store root.
func (c *Config) Layout() Layout {
	return Layout{Root: c.ResolveRoot()}
}

// Layout maps a store root to the paths every component works in. All
// methods return absolute paths when Root is absolute.
type Layout struct {
	Root string
}

// Queue is the raw journal entry directory.
func (l Layout) Queue() string { return filepath.Join(l.Root, "queue") }

// BatchWorkspace is the in-flight aggregation directory.
func (l Layout) BatchWorkspace() string { return filepath.Join(l.Root, "queue_batch") }

// QueueBackup holds quarantined raw entries.
func (l Layout) QueueBackup() string { return filepath.Join(l.Root, "queue_backup") }

// OperationQueue is the pending request mailbox.
func (l Layout) OperationQueue() string { return filepath.Join(l.Root, "operation_queue") }

// OperationQueueBackup holds dead-lettered requests.
func (l Layout) OperationQueueBackup() string {
	return filepath.Join(l.Root, "operation_queue_backup")
}

// Data is the version-controlled working tree.
func (l Layout) Data() string { return filepath.Join(l.Root, "data") }

// Batches holds pending and collected batch documents inside the
// working tree.
func (l Layout) Batches() string { return filepath.Join(l.Root, "data", "batches") }

// Reports holds derived per-day report files inside the working tree.
func (l Layout) Reports() string { return filepath.Join(l.Root, "data", "reports") }

// Replica is the bare mirror repository.
func (l Layout) Replica() string { return filepath.Join(l.Root, "backup") }

// LockFile is the cross-process store lock.
func (l Layout) LockFile() string { return filepath.Join(l.Root, "store.lock") }

// LogFile is the default log destination.
func (l Layout) LogFile() string { return filepath.Join(l.Root, "chronicle.log") }

// SetDefaults seeds viper with the Default values so an absent or partial
// config file still yields a complete Config.
func SetDefaults() {
	d := Default()

	viper.SetDefault("root", d.Root)
	viper.SetDefault("process_interval", d.ProcessInterval)
	viper.SetDefault("flush_interval", d.FlushInterval)
	viper.SetDefault("lock_timeout", d.LockTimeout)
	viper.SetDefault("watch", d.Watch)
	viper.SetDefault("bucket_minutes", d.BucketMinutes)
	viper.SetDefault("export_command", d.ExportCommand)

	viper.SetDefault("git.author_name", d.Git.AuthorName)
	viper.SetDefault("git.author_email", d.Git.AuthorEmail)

	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.file", d.Log.File)
	viper.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	viper.SetDefault("log.max_backups", d.Log.MaxBackups)
	viper.SetDefault("log.compress", d.Log.Compress)
}

// Load unmarshals the viper state into a validated Config. A Config is never
// returned alongside validation errors.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the loaded configuration, or the defaults when loading fails.
// Commands that cannot surface a config error use this.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir is where the config file lives, normally
// os.UserConfigDir()/chronicle.
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return ".chronicle"
		}
		return filepath.Join(home, ".config", "chronicle")
	}
	return filepath.Join(dir, "chronicle")
}

// ConfigFile is the full path of the YAML config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
