package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vango-dev/hotshim/internal/errors"
	"github.com/vango-dev/hotshim/pkg/mangle"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "hotshim.json"

	// PortEnv is the environment variable that overrides the port.
	PortEnv = "PORT"

	// DefaultPort is the default development server port.
	DefaultPort = 7654

	// DefaultHost is the default development server host.
	DefaultHost = "localhost"

	// DefaultEntry is the default bundle entry point.
	DefaultEntry = "src/index.js"

	// DefaultOutdir is the default bundle output directory.
	DefaultOutdir = "public"

	// DefaultBundle is the default bundle file name.
	DefaultBundle = "bundle.js"

	// DefaultPublicPath is the URL prefix the bundle is served under.
	DefaultPublicPath = "/"

	// DefaultIndex is the document served at the root path.
	DefaultIndex = "public/index.html"

	// DefaultInitDelay is how long native modules wait for init.
	DefaultInitDelay = "1s"
)

// Config represents the complete hotshim.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// AppName is the application identifier ("owner/name") used to
	// initialise native modules at startup. When empty, modules wait for the
	// host page to call init.
	AppName string `json:"appName,omitempty"`

	// Port is the dev server port.
	Port int `json:"port,omitempty"`

	// Host is the host to bind to.
	Host string `json:"host,omitempty"`

	// Entry lists the bundle entry points.
	Entry []string `json:"entry,omitempty"`

	// Outdir is the bundle output directory.
	Outdir string `json:"outdir,omitempty"`

	// Bundle is the output file name of the first entry point.
	Bundle string `json:"bundle,omitempty"`

	// PublicPath is the URL prefix of bundle outputs.
	PublicPath string `json:"publicPath,omitempty"`

	// Index is the document served at "/".
	Index string `json:"index,omitempty"`

	// MangleMode selects the key mangling rules ("compat" or "full").
	MangleMode string `json:"mangleMode,omitempty"`

	// Modules lists the native modules to register.
	Modules []ModuleConfig `json:"modules,omitempty"`

	// Dev contains development server configuration.
	Dev DevConfig `json:"dev,omitempty"`

	// Publish contains bundle upload configuration.
	Publish PublishConfig `json:"publish,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ModuleConfig declares a native module.
type ModuleConfig struct {
	// Identity names the shim, e.g. "ElmSomething".
	Identity string `json:"identity"`

	// Path is the module path in the host namespace, e.g. "Native.Something".
	Path string `json:"path"`

	// Exports is published as the module object when no built-in factory
	// exists for Path.
	Exports map[string]any `json:"exports,omitempty"`
}

// DevConfig contains development server settings.
type DevConfig struct {
	// HotReload enables the live reload channel.
	HotReload bool `json:"hotReload"`

	// Watch contains paths to watch for changes.
	Watch []string `json:"watch,omitempty"`

	// Ignore contains patterns to ignore during watch.
	Ignore []string `json:"ignore,omitempty"`

	// InitDelay is how long a native module waits for init before warning.
	InitDelay string `json:"initDelay,omitempty"`

	// HandoffDir persists module registrations across server restarts.
	// Empty keeps reload state in memory, so every start is a cold start.
	HandoffDir string `json:"handoffDir,omitempty"`
}

// PublishConfig contains S3 upload settings.
type PublishConfig struct {
	// Bucket is the target bucket.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix,omitempty"`

	// Region is the bucket region.
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint (e.g. for MinIO).
	Endpoint string `json:"endpoint,omitempty"`

	// PathStyle forces path-style addressing.
	PathStyle bool `json:"pathStyle,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Port:       DefaultPort,
		Host:       DefaultHost,
		Entry:      []string{DefaultEntry},
		Outdir:     DefaultOutdir,
		Bundle:     DefaultBundle,
		PublicPath: DefaultPublicPath,
		Index:      DefaultIndex,
		MangleMode: mangle.ModeCompat.String(),
		Modules: []ModuleConfig{
			{Identity: "ElmSomething", Path: "Native.Something"},
		},
		Dev: DevConfig{
			HotReload: true,
			Watch:     []string{"src"},
			InitDelay: DefaultInitDelay,
		},
		Publish: PublishConfig{
			Region: "us-east-1",
		},
	}
}

// Load reads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadOrDefault reads configuration from dir, or returns the defaults
// rooted at dir when it has no config file.
func LoadOrDefault(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := New()
		cfg.configPath = path
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("H141").
				WithDetail("No hotshim.json found in " + filepath.Dir(path)).
				WithSuggestion("Create hotshim.json or run from a directory that has one")
		}
		return nil, errors.New("H140").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("H140").
			WithDetail("Failed to parse hotshim.json: " + err.Error()).
			WithSuggestion("Check that hotshim.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if len(c.Entry) == 0 {
		c.Entry = []string{DefaultEntry}
	}
	if c.Outdir == "" {
		c.Outdir = DefaultOutdir
	}
	if c.Bundle == "" {
		c.Bundle = DefaultBundle
	}
	if c.PublicPath == "" {
		c.PublicPath = DefaultPublicPath
	}
	if c.Index == "" {
		c.Index = DefaultIndex
	}
	if c.MangleMode == "" {
		c.MangleMode = mangle.ModeCompat.String()
	}
	if c.Dev.Watch == nil {
		c.Dev.Watch = []string{"src"}
	}
	if c.Dev.InitDelay == "" {
		c.Dev.InitDelay = DefaultInitDelay
	}
}

// ApplyEnv applies environment overrides using getenv (usually os.Getenv).
// An unparsable PORT is ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(PortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("H142").
			WithDetail(fmt.Sprintf("Port %d is out of range", c.Port))
	}
	if _, err := mangle.ParseMode(c.MangleMode); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Dev.InitDelay); err != nil {
		return errors.New("H140").
			WithDetail(fmt.Sprintf("dev.initDelay %q is not a duration", c.Dev.InitDelay)).
			WithSuggestion(`Use a Go duration such as "1s" or "500ms"`)
	}

	seen := make(map[string]bool, len(c.Modules))
	for i, m := range c.Modules {
		if m.Identity == "" || m.Path == "" {
			return errors.New("H140").
				WithDetail(fmt.Sprintf("modules[%d] needs both identity and path", i))
		}
		if seen[m.Identity] {
			return errors.New("H143").
				WithDetail(fmt.Sprintf("identity %q is declared more than once", m.Identity))
		}
		seen[m.Identity] = true
	}
	return nil
}

// Mode returns the configured mangle mode, ModeCompat when invalid.
func (c *Config) Mode() mangle.Mode {
	mode, _ := mangle.ParseMode(c.MangleMode)
	return mode
}

// InitDelay returns dev.initDelay as a duration.
func (c *Config) InitDelay() time.Duration {
	d, err := time.ParseDuration(c.Dev.InitDelay)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Address returns the listen address of the dev server.
func (c *Config) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// URL returns the full URL for the dev server.
func (c *Config) URL() string {
	return "http://" + c.Address()
}

// OutdirPath returns the absolute path to the bundle output directory.
func (c *Config) OutdirPath() string {
	return c.resolve(c.Outdir)
}

// IndexPath returns the absolute path to the index document.
func (c *Config) IndexPath() string {
	return c.resolve(c.Index)
}

// HandoffPath returns the absolute path to the handoff directory, or ""
// when no directory is configured.
func (c *Config) HandoffPath() string {
	return c.resolve(c.Dev.HandoffDir)
}

// EntryPaths returns the absolute paths of the entry points.
func (c *Config) EntryPaths() []string {
	paths := make([]string, 0, len(c.Entry))
	for _, e := range c.Entry {
		paths = append(paths, c.resolve(e))
	}
	return paths
}

// WatchPaths returns the absolute paths of the watched directories.
func (c *Config) WatchPaths() []string {
	paths := make([]string, 0, len(c.Dev.Watch))
	for _, w := range c.Dev.Watch {
		paths = append(paths, c.resolve(w))
	}
	return paths
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing hotshim.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("H141").
				WithDetail("No hotshim.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the project containing the
// working directory, or the defaults rooted at the working directory when
// no project is found.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return LoadOrDefault(wd)
	}
	return Load(root)
}
