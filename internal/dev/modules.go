package dev

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/hotshim/internal/config"
	"github.com/vango-dev/hotshim/internal/errors"
	"github.com/vango-dev/hotshim/internal/native"
	"github.com/vango-dev/hotshim/pkg/handoff"
	"github.com/vango-dev/hotshim/pkg/mangle"
	"github.com/vango-dev/hotshim/pkg/registry"
	"github.com/vango-dev/hotshim/pkg/shim"
)

// ModuleHostConfig configures a ModuleHost.
type ModuleHostConfig struct {
	// Modules are the native modules to register.
	Modules []config.ModuleConfig

	// Catalog resolves module factories.
	// Default: native.NewCatalog()
	Catalog *native.Catalog

	// AppName initialises every module on Start when set.
	AppName string

	// Mode selects the mangling rules.
	Mode mangle.Mode

	// Delay before the missed-init warning.
	Delay time.Duration

	// Handoff carries registrations across Cycle.
	// Default: handoff.NewMemoryStore()
	Handoff handoff.Store

	// Logger for registry and registrar output.
	Logger *slog.Logger

	// Registerer receives the registry metrics.
	Registerer prometheus.Registerer

	// OnMissedInit is called for every module that misses its init.
	OnMissedInit func(identity string)
}

// ModuleHost owns the registry and one registrar per configured module.
// Cycle replaces every registrar the way a bundle reload replaces the
// module code.
type ModuleHost struct {
	config   ModuleHostConfig
	registry *registry.Registry
	logger   *slog.Logger

	mu         sync.Mutex
	registrars []*shim.Registrar
	cycles     int
	started    bool
}

// NewModuleHost creates a module host.
func NewModuleHost(cfg ModuleHostConfig) *ModuleHost {
	if cfg.Catalog == nil {
		cfg.Catalog = native.NewCatalog()
	}
	if cfg.Handoff == nil {
		cfg.Handoff = handoff.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ModuleHost{
		config: cfg,
		registry: registry.New(
			registry.WithLogger(cfg.Logger),
			registry.WithRegisterer(cfg.Registerer),
		),
		logger: cfg.Logger,
	}
}

// Registry returns the registry modules are published into.
func (h *ModuleHost) Registry() *registry.Registry {
	return h.registry
}

// Start opens the registry and creates the registrars. When AppName is
// configured, every module is initialised immediately.
func (h *ModuleHost) Start(ctx context.Context) error {
	if err := h.registry.Init(); err != nil {
		return err
	}

	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	registrars, err := h.build()
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.registrars = registrars
	h.started = true
	h.mu.Unlock()

	if h.config.AppName != "" {
		return h.InitAll(ctx, h.config.AppName)
	}
	return nil
}

func (h *ModuleHost) build() ([]*shim.Registrar, error) {
	registrars := make([]*shim.Registrar, 0, len(h.config.Modules))
	for _, m := range h.config.Modules {
		factory, err := h.config.Catalog.Factory(m)
		if err != nil {
			for _, r := range registrars {
				r.Close()
			}
			return nil, err
		}
		registrars = append(registrars, shim.New(m.Identity, m.Path, factory, shim.Options{
			Registry:     h.registry,
			Mode:         h.config.Mode,
			Delay:        h.config.Delay,
			Logger:       h.logger,
			Handoff:      h.config.Handoff,
			OnMissedInit: h.config.OnMissedInit,
		}))
	}
	return registrars, nil
}

// InitAll initialises every module for app. An invalid application
// identifier is rejected before any module is touched.
func (h *ModuleHost) InitAll(ctx context.Context, app string) error {
	if err := mangle.ValidateApp(app); err != nil {
		return err
	}

	// Held across the loop so a concurrent Cycle cannot replace the
	// registrars being initialised.
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, r := range h.registrars {
		if err := r.InitContext(ctx, app); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Identity(), err))
		}
	}
	return stderrors.Join(errs...)
}

// Cycle tears every registrar down into the handoff store and replaces it
// with a fresh one. Initialised modules re-register themselves under the
// next epoch; the rest arm a new missed-init warning.
func (h *ModuleHost) Cycle() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return errors.New("H120").WithDetail("module host is not started")
	}

	var errs []error
	for _, r := range h.registrars {
		if err := r.Teardown(); err != nil {
			errs = append(errs, err)
		}
	}

	registrars, err := h.build()
	if err != nil {
		errs = append(errs, err)
		return stderrors.Join(errs...)
	}
	h.registrars = registrars
	h.cycles++

	h.logger.Debug("native modules replaced", "cycle", h.cycles, "modules", len(registrars))
	return stderrors.Join(errs...)
}

// Cycles returns how many times Cycle has replaced the registrars.
func (h *ModuleHost) Cycles() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cycles
}

// States returns the state of every registrar in configuration order.
func (h *ModuleHost) States() []shim.State {
	h.mu.Lock()
	defer h.mu.Unlock()

	states := make([]shim.State, 0, len(h.registrars))
	for _, r := range h.registrars {
		states = append(states, r.State())
	}
	return states
}

// Suspend hands every registrar off to the handoff store, then stops the
// host. A host started later over the same store restores the
// registrations.
func (h *ModuleHost) Suspend() error {
	h.mu.Lock()
	var errs []error
	for _, r := range h.registrars {
		if err := r.Teardown(); err != nil {
			errs = append(errs, err)
		}
	}
	h.mu.Unlock()

	h.Stop()
	return stderrors.Join(errs...)
}

// Stop cancels pending warnings and shuts the registry down.
func (h *ModuleHost) Stop() {
	h.mu.Lock()
	for _, r := range h.registrars {
		r.Close()
	}
	h.registrars = nil
	h.started = false
	h.mu.Unlock()

	h.registry.Shutdown()
}
