package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultDaemonConfig(t *testing.T) {
	cfg := DefaultDaemonConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.SocketPath() != filepath.Join(".data", "jobd.sock") {
		t.Errorf("SocketPath = %q", cfg.SocketPath())
	}
	if cfg.StorePath() != filepath.Join(".data", "state.db") {
		t.Errorf("StorePath = %q", cfg.StorePath())
	}
	if cfg.Reachability.Timeout != 15*time.Second {
		t.Errorf("Reachability.Timeout = %v", cfg.Reachability.Timeout)
	}
	if cfg.Archive.Timeout != 2*time.Minute {
		t.Errorf("Archive.Timeout = %v", cfg.Archive.Timeout)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobd.yaml")
	writeFile(t, path, `
data_dir: /var/lib/jobd
store:
  driver: file
log:
  level: debug
reachability:
  timeout: 3s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/jobd" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.StorePath() != "/var/lib/jobd/state.json" {
		t.Errorf("StorePath = %q", cfg.StorePath())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want default text", cfg.Log.Format)
	}
	if cfg.LogDir != "logs" {
		t.Errorf("LogDir = %q, want default logs", cfg.LogDir)
	}
	if cfg.Reachability.Timeout != 3*time.Second {
		t.Errorf("Reachability.Timeout = %v", cfg.Reachability.Timeout)
	}
	if len(cfg.Reachability.Command) == 0 || cfg.Reachability.Command[0] != "ssh" {
		t.Errorf("Reachability.Command = %v, want default ssh probe", cfg.Reachability.Command)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad driver", "store:\n  driver: postgres\n", "store.driver"},
		{"archive without bucket", "archive:\n  enabled: true\n", "archive.bucket"},
		{"unknown log level", "log:\n  level: verbose\n", "log.level"},
		{"unknown log format", "log:\n  format: logfmt\n", "log.format"},
		{"not yaml", "data_dir: [unterminated\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load of missing file returned nil error")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobd.yaml")
	writeFile(t, path, "log:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan DaemonConfig, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, logger, func(cfg DaemonConfig) { got <- cfg })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "log:\n  level: debug\n")

	select {
	case cfg := <-got:
		if cfg.Log.Level != "debug" {
			t.Errorf("reloaded level = %q, want debug", cfg.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
