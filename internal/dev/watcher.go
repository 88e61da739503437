package dev

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ChangeType represents the type of file change.
type ChangeType int

const (
	// ChangeScript is a bundle input; it triggers a rebuild and a module
	// cycle.
	ChangeScript ChangeType = iota

	// ChangeCSS is a stylesheet; browsers swap it without reloading.
	ChangeCSS

	// ChangeTemplate is an HTML document; browsers reload.
	ChangeTemplate

	// ChangeAsset is any other file; browsers reload.
	ChangeAsset
)

func (t ChangeType) String() string {
	switch t {
	case ChangeScript:
		return "script"
	case ChangeCSS:
		return "css"
	case ChangeTemplate:
		return "template"
	default:
		return "asset"
	}
}

// Change represents a detected file change.
type Change struct {
	Path    string
	Type    ChangeType
	Removed bool
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the files and directories to watch.
	Paths []string

	// Ignore patterns to skip. A pattern is a base name, a glob, or a run
	// of path segments such as "src/generated".
	Ignore []string

	// Interval is the polling interval.
	Interval time.Duration
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	".hotshim",
	"node_modules",
	"elm-stuff",
	"*.tmp",
	"*.swp",
	"*~",
	".DS_Store",
}

// Watcher polls files for changes and reports them in batches.
type Watcher struct {
	config   WatcherConfig
	onChange func([]Change)

	mu      sync.Mutex
	running bool
	scanned bool
	stopCh  chan struct{}
	seen    map[string]time.Time
}

// NewWatcher creates a new file watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}

	return &Watcher{
		config: config,
		seen:   make(map[string]time.Time),
	}
}

// OnChange sets the callback for a batch of changes. Every change found in
// one poll is passed in a single call.
func (w *Watcher) OnChange(fn func([]Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start polls until ctx is done or Stop is called. The first scan records
// the existing files without reporting them.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	stopCh := make(chan struct{})
	w.stopCh = stopCh
	w.mu.Unlock()

	w.Poll()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			if changes := w.Poll(); len(changes) > 0 {
				w.mu.Lock()
				callback := w.onChange
				w.mu.Unlock()
				if callback != nil {
					callback(changes)
				}
			}
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Poll scans the watched paths once and returns the changes since the
// previous scan, sorted by path. The first call only records state.
func (w *Watcher) Poll() []Change {
	current := make(map[string]time.Time)
	for _, root := range w.config.Paths {
		filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if p != root && w.shouldIgnore(p) {
					return filepath.SkipDir
				}
				return nil
			}
			if w.shouldIgnore(p) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			current[p] = info.ModTime()
			return nil
		})
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	first := !w.scanned
	w.scanned = true
	var changes []Change
	if !first {
		for p, mod := range current {
			if prev, ok := w.seen[p]; !ok || mod.After(prev) {
				changes = append(changes, Change{Path: p, Type: classifyChange(p)})
			}
		}
		for p := range w.seen {
			if _, ok := current[p]; !ok {
				if _, err := os.Stat(p); os.IsNotExist(err) {
					changes = append(changes, Change{Path: p, Type: classifyChange(p), Removed: true})
				}
			}
		}
	}
	w.seen = current
	if first {
		return nil
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// shouldIgnore checks if a path matches one of the ignore patterns.
func (w *Watcher) shouldIgnore(fullPath string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)

	for _, pattern := range w.config.Ignore {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if name == pattern {
			return true
		}

		nested := strings.Contains(pattern, "/")
		if strings.ContainsAny(pattern, "*?[") {
			target := name
			if nested {
				target = normalized
			}
			if matched, _ := path.Match(pattern, target); matched {
				return true
			}
			continue
		}

		if containsSegments(splitPathSegments(normalized), splitPathSegments(pattern)) {
			return true
		}
	}

	return false
}

// containsSegments reports whether want occurs as a contiguous run in parts.
func containsSegments(parts, want []string) bool {
	if len(want) == 0 || len(want) > len(parts) {
		return false
	}
	for i := 0; i+len(want) <= len(parts); i++ {
		match := true
		for j := range want {
			if parts[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func splitPathSegments(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}

// classifyChange determines the type of change based on file extension.
// Elm sources count as scripts so an edit rebuilds the bundle, but hotshim
// does not compile Elm: esbuild has no loader for .elm, so the compiled
// output must be imported from JavaScript by an external build step.
func classifyChange(p string) ChangeType {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx", ".elm", ".json":
		return ChangeScript
	case ".css", ".scss", ".sass", ".less":
		return ChangeCSS
	case ".html", ".htm":
		return ChangeTemplate
	default:
		return ChangeAsset
	}
}

// collectWatchPaths returns the cleaned, de-duplicated watch paths: the
// configured watch list, the directories of the entry points and the index
// document.
func collectWatchPaths(watch, entries []string, index string) []string {
	paths := append([]string(nil), watch...)
	for _, e := range entries {
		paths = append(paths, filepath.Dir(e))
	}
	if index != "" {
		paths = append(paths, index)
	}

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		clean := filepath.Clean(p)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		unique = append(unique, clean)
	}
	return unique
}
