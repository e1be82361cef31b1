package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Root != "" {
		t.Errorf("Root = %q, want empty (resolved lazily)", cfg.Root)
	}
	if cfg.ProcessInterval != 10*time.Second {
		t.Errorf("ProcessInterval = %v, want 10s", cfg.ProcessInterval)
	}
	if cfg.FlushInterval != 2*time.Minute {
		t.Errorf("FlushInterval = %v, want 2m", cfg.FlushInterval)
	}
	if cfg.LockTimeout != 1*time.Second {
		t.Errorf("LockTimeout = %v, want 1s", cfg.LockTimeout)
	}
	if cfg.Watch {
		t.Error("Watch should be false by default")
	}
	if cfg.BucketMinutes != 60 {
		t.Errorf("BucketMinutes = %d, want 60", cfg.BucketMinutes)
	}
	if cfg.ExportCommand != "" {
		t.Errorf("ExportCommand = %q, want empty", cfg.ExportCommand)
	}

	// Verify default git identity
	if cfg.Git.AuthorName != "chronicle" {
		t.Errorf("Git.AuthorName = %q, want %q", cfg.Git.AuthorName, "chronicle")
	}
	if cfg.Git.AuthorEmail != "chronicle@localhost" {
		t.Errorf("Git.AuthorEmail = %q, want %q", cfg.Git.AuthorEmail, "chronicle@localhost")
	}

	// Verify default log config
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("Log.MaxSizeMB = %d, want 10", cfg.Log.MaxSizeMB)
	}
	if cfg.Log.MaxBackups != 3 {
		t.Errorf("Log.MaxBackups = %d, want 3", cfg.Log.MaxBackups)
	}
	if cfg.Log.Compress {
		t.Error("Log.Compress should be false by default")
	}
}

func TestConfig_ResolveRoot(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	tests := []struct {
		name string
		root string
		want string
	}{
		{name: "empty uses home default", root: "", want: "/home/tester/.chronicle"},
		{name: "tilde expansion", root: "~/recordings", want: "/home/tester/recordings"},
		{name: "bare tilde", root: "~", want: "/home/tester"},
		{name: "absolute unchanged", root: "/var/lib/chronicle", want: "/var/lib/chronicle"},
		{name: "relative unchanged", root: "chronicle-root", want: "chronicle-root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Root: tt.root}
			if got := cfg.ResolveRoot(); got != tt.want {
				t.Errorf("ResolveRoot() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_LogFile(t *testing.T) {
	cfg := &Config{Root: "/srv/chron"}
	if got := cfg.LogFile(); got != filepath.Join("/srv/chron", "chronicle.log") {
		t.Errorf("LogFile() = %q, want store-root default", got)
	}

	cfg.Log.File = "/var/log/chronicle.log"
	if got := cfg.LogFile(); got != "/var/log/chronicle.log" {
		t.Errorf("LogFile() = %q, want explicit path", got)
	}
}

func TestLayout(t *testing.T) {
	l := Layout{Root: "/srv/chron"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Queue", l.Queue(), "/srv/chron/queue"},
		{"BatchWorkspace", l.BatchWorkspace(), "/srv/chron/queue_batch"},
		{"QueueBackup", l.QueueBackup(), "/srv/chron/queue_backup"},
		{"OperationQueue", l.OperationQueue(), "/srv/chron/operation_queue"},
		{"OperationQueueBackup", l.OperationQueueBackup(), "/srv/chron/operation_queue_backup"},
		{"Data", l.Data(), "/srv/chron/data"},
		{"Batches", l.Batches(), "/srv/chron/data/batches"},
		{"Reports", l.Reports(), "/srv/chron/data/reports"},
		{"Replica", l.Replica(), "/srv/chron/backup"},
		{"LockFile", l.LockFile(), "/srv/chron/store.lock"},
		{"LogFile", l.LogFile(), "/srv/chron/chronicle.log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Fatal("ConfigDir() returned empty path")
	}
	if filepath.Base(dir) != "chronicle" {
		t.Errorf("ConfigDir() = %q, want a chronicle directory", dir)
	}
}

func TestConfigFile(t *testing.T) {
	file := ConfigFile()
	if filepath.Dir(file) != ConfigDir() {
		t.Errorf("ConfigFile() = %q, want it inside ConfigDir()", file)
	}
	if !strings.HasSuffix(file, "config.yaml") {
		t.Errorf("ConfigFile() = %q, want config.yaml", file)
	}
}

func TestGet(t *testing.T) {
	// The cmd package normally seeds viper before any Get call.
	SetDefaults()

	// Without a config file Get falls through to the defaults.
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}

	if cfg.ProcessInterval != 10*time.Second {
		t.Errorf("Get().ProcessInterval = %v, want 10s", cfg.ProcessInterval)
	}
	if cfg.BucketMinutes != 60 {
		t.Errorf("Get().BucketMinutes = %d, want 60", cfg.BucketMinutes)
	}
}
