// Package registry is the table that maps mangled keys to native module
// objects.
//
// A Registry is an explicit service rather than ambient global state: the
// owner calls Init before modules are published and Shutdown when the
// process (or test) is done with it. Registrars receive it by injection.
//
// Writes follow last-write-wins. Publishing under a key held by a different
// application is allowed but logged as a duplicate registration.
package registry

import (
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/hotshim/internal/errors"
)

// Sentinel errors. Errors returned by this package wrap one of these.
var (
	ErrNotOpen = stderrors.New("registry not initialised")
	ErrClosed  = stderrors.New("registry shut down")
)

// Entry is one published module.
type Entry struct {
	// Key is the mangled registry key.
	Key string `json:"key"`

	// Module is the object returned by the registrar's factory.
	Module any `json:"module"`

	// Owner is the identity of the shim that published the module.
	Owner string `json:"owner"`

	// App is the application identifier the key was derived from.
	App string `json:"app"`

	// Epoch counts the hot replacements the publishing shim survived.
	Epoch int `json:"epoch"`

	// RegisteredAt is when the entry was written.
	RegisteredAt time.Time `json:"registeredAt"`
}

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// Registry maps mangled keys to module objects.
type Registry struct {
	mu      sync.RWMutex
	state   state
	entries map[string]Entry
	logger  *slog.Logger
	metrics *metrics
	now     func() time.Time
}

// New creates a registry. It must be opened with Init before use.
func New(opts ...Option) *Registry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		entries: make(map[string]Entry),
		logger:  logger,
		now:     time.Now,
	}
	if cfg.Registerer != nil {
		r.metrics = newMetrics(cfg)
	}
	return r
}

// Init opens the registry. Calling Init on an open registry is a no-op.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateOpen:
		return nil
	case stateClosed:
		return errors.New("H121").Wrap(ErrClosed)
	}
	r.state = stateOpen
	r.logger.Debug("registry initialised")
	return nil
}

// Shutdown drops every entry and closes the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateClosed {
		return
	}
	dropped := len(r.entries)
	r.entries = make(map[string]Entry)
	r.state = stateClosed
	r.metrics.setEntries(0)
	r.logger.Debug("registry shut down", "dropped", dropped)
}

// Publish writes an entry under entry.Key, replacing any previous entry.
// It reports whether an entry was replaced.
func (r *Registry) Publish(entry Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateNew:
		return false, errors.New("H120").Wrap(ErrNotOpen)
	case stateClosed:
		return false, errors.New("H121").Wrap(ErrClosed)
	}

	if entry.RegisteredAt.IsZero() {
		entry.RegisteredAt = r.now()
	}

	prev, replaced := r.entries[entry.Key]
	if replaced && prev.App != entry.App {
		r.logger.Warn("duplicate registration",
			"key", entry.Key,
			"previousApp", prev.App,
			"previousOwner", prev.Owner,
			"app", entry.App,
			"owner", entry.Owner,
		)
		r.metrics.incDuplicate()
	}

	r.entries[entry.Key] = entry
	r.metrics.incRegistration(replaced)
	r.metrics.setEntries(len(r.entries))
	return replaced, nil
}

// Lookup returns the module published under key.
func (r *Registry) Lookup(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e.Module, ok
}

// Entry returns the full entry published under key.
func (r *Registry) Entry(key string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

// Keys returns the published keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns a snapshot of all entries sorted by key.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of published entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IsOpen reports whether the registry accepts writes.
func (r *Registry) IsOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == stateOpen
}
