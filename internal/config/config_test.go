package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vango-dev/hotshim/pkg/mangle"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Host != DefaultHost {
		t.Errorf("Host = %q, want %q", cfg.Host, DefaultHost)
	}
	if len(cfg.Entry) != 1 || cfg.Entry[0] != DefaultEntry {
		t.Errorf("Entry = %v, want [%s]", cfg.Entry, DefaultEntry)
	}
	if cfg.Bundle != DefaultBundle {
		t.Errorf("Bundle = %q, want %q", cfg.Bundle, DefaultBundle)
	}
	if !cfg.Dev.HotReload {
		t.Error("HotReload should default to true")
	}
	if len(cfg.Modules) != 1 || cfg.Modules[0].Path != "Native.Something" {
		t.Errorf("Modules = %+v", cfg.Modules)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := Load(tmpDir); err == nil {
		t.Error("Expected error for missing config")
	}

	configJSON := `{
  "appName": "author/my-app",
  "port": 8080,
  "entry": ["src/main.js"],
  "mangleMode": "full",
  "modules": [
    {"identity": "ElmClock", "path": "Native.Clock", "exports": {"tick": 1000}}
  ],
  "dev": {
    "hotReload": false,
    "initDelay": "250ms"
  },
  "publish": {
    "bucket": "assets"
  }
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AppName != "author/my-app" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Mode() != mangle.ModeFull {
		t.Errorf("Mode = %v, want full", cfg.Mode())
	}
	if cfg.Dev.HotReload {
		t.Error("HotReload should be false")
	}
	if cfg.InitDelay() != 250*time.Millisecond {
		t.Errorf("InitDelay = %v", cfg.InitDelay())
	}
	if len(cfg.Modules) != 1 || cfg.Modules[0].Identity != "ElmClock" {
		t.Fatalf("Modules = %+v", cfg.Modules)
	}
	if cfg.Modules[0].Exports["tick"] != float64(1000) {
		t.Errorf("Exports = %v", cfg.Modules[0].Exports)
	}
	if cfg.Publish.Bucket != "assets" || cfg.Publish.Region != "us-east-1" {
		t.Errorf("Publish = %+v", cfg.Publish)
	}

	// Defaults fill the rest.
	if cfg.Outdir != DefaultOutdir || cfg.Index != DefaultIndex {
		t.Errorf("Outdir = %q, Index = %q", cfg.Outdir, cfg.Index)
	}
	if cfg.Dir() != tmpDir {
		t.Errorf("Dir = %q, want %q", cfg.Dir(), tmpDir)
	}
	if got := cfg.EntryPaths(); got[0] != filepath.Join(tmpDir, "src/main.js") {
		t.Errorf("EntryPaths = %v", got)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(tmpDir); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadOrDefault(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := LoadOrDefault(tmpDir)
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Dir() != tmpDir {
		t.Errorf("Dir = %q, want %q", cfg.Dir(), tmpDir)
	}
	if cfg.OutdirPath() != filepath.Join(tmpDir, "public") {
		t.Errorf("OutdirPath = %q", cfg.OutdirPath())
	}
	if cfg.HandoffPath() != "" {
		t.Errorf("HandoffPath = %q, want empty by default", cfg.HandoffPath())
	}
	cfg.Dev.HandoffDir = ".hotshim/handoff"
	if cfg.HandoffPath() != filepath.Join(tmpDir, ".hotshim", "handoff") {
		t.Errorf("HandoffPath = %q", cfg.HandoffPath())
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		env  string
		want int
	}{
		{"", DefaultPort},
		{"9999", 9999},
		{"not-a-port", DefaultPort},
	}

	for _, tt := range tests {
		cfg := New()
		cfg.ApplyEnv(func(key string) string {
			if key == PortEnv {
				return tt.env
			}
			return ""
		})
		if cfg.Port != tt.want {
			t.Errorf("PORT=%q: Port = %d, want %d", tt.env, cfg.Port, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative port", func(c *Config) { c.Port = -1 }, true},
		{"port too high", func(c *Config) { c.Port = 70000 }, true},
		{"bad mode", func(c *Config) { c.MangleMode = "general" }, true},
		{"bad delay", func(c *Config) { c.Dev.InitDelay = "soon" }, true},
		{"module without path", func(c *Config) {
			c.Modules = []ModuleConfig{{Identity: "X"}}
		}, true},
		{"duplicate identity", func(c *Config) {
			c.Modules = []ModuleConfig{
				{Identity: "X", Path: "Native.A"},
				{Identity: "X", Path: "Native.B"},
			}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBadModeWrapsSentinel(t *testing.T) {
	cfg := New()
	cfg.MangleMode = "general"
	if err := cfg.Validate(); !stderrors.Is(err, mangle.ErrUnknownMode) {
		t.Errorf("Validate() = %v, want ErrUnknownMode", err)
	}
}

func TestAddress(t *testing.T) {
	cfg := New()
	if cfg.Address() != "localhost:7654" {
		t.Errorf("Address = %q", cfg.Address())
	}
	if cfg.URL() != "http://localhost:7654" {
		t.Errorf("URL = %q", cfg.URL())
	}
}

func TestFindProjectRoot(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "src", "Native")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	root, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	if root != tmpDir {
		t.Errorf("root = %q, want %q", root, tmpDir)
	}
}
