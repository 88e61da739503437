// Package shim registers native modules for a host runtime.
//
// A Registrar wraps one native module. The host calls Init with its
// application identifier; the registrar derives the mangled key, builds the
// module with its factory and publishes it into the injected registry.
//
//	reg := registry.New()
//	reg.Init()
//
//	r := shim.New("ElmSomething", "Native.Something", factory, shim.Options{
//	    Registry: reg,
//	})
//	if err := r.Init("author/my-app"); err != nil {
//	    return err
//	}
//	mod, _ := reg.Lookup(r.Key()) // "_author$my_app$Native_Something"
//
// If Init has not been called when Options.Delay elapses, the registrar logs
// one advisory warning. The warning never blocks and never fails anything.
//
// # Hot replacement
//
// With Options.Handoff set, Teardown saves the application identifier under
// the shim identity, and a replacement registrar built with the same
// identity re-initialises itself from it without the host calling Init.
package shim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/hotshim/internal/errors"
	"github.com/vango-dev/hotshim/pkg/handoff"
	"github.com/vango-dev/hotshim/pkg/mangle"
	"github.com/vango-dev/hotshim/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDelay is how long a registrar waits for Init before warning.
const DefaultDelay = time.Second

const tracerName = "github.com/vango-dev/hotshim/pkg/shim"

// Factory builds the module object published on Init. It runs without the
// registrar lock held.
type Factory func() any

// Options configures a Registrar.
type Options struct {
	// Registry receives the module on Init. Required.
	Registry *registry.Registry

	// Mode selects the mangling rules (default: mangle.ModeCompat).
	Mode mangle.Mode

	// Delay before the missed-init warning (default: DefaultDelay).
	Delay time.Duration

	// Logger receives the missed-init warning.
	// Default: slog.Default()
	Logger *slog.Logger

	// Handoff carries state across hot replacements. Nil disables reload
	// continuity.
	Handoff handoff.Store

	// OnMissedInit is called after the missed-init warning is logged.
	OnMissedInit func(identity string)

	// Tracer records a span per Init.
	// Default: otel.Tracer for this package.
	Tracer trace.Tracer
}

// State is a snapshot of a registrar's registration state.
type State struct {
	Identity    string `json:"identity"`
	ModulePath  string `json:"modulePath"`
	Initialised bool   `json:"initialised"`
	AppName     string `json:"appName,omitempty"`
	Key         string `json:"key,omitempty"`
	Epoch       int    `json:"epoch"`
}

// Registrar publishes one native module under its mangled key.
type Registrar struct {
	identity   string
	modulePath string
	factory    Factory
	opts       Options
	logger     *slog.Logger
	tracer     trace.Tracer

	mu          sync.Mutex
	initialised bool
	appName     string
	key         string
	epoch       int
	timer       *time.Timer
	closed      bool
}

// New creates a registrar for the module at modulePath. If the handoff
// store holds state for identity, the registrar initialises itself from it;
// otherwise it arms the missed-init warning.
func New(identity, modulePath string, factory Factory, opts Options) *Registrar {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	r := &Registrar{
		identity:   identity,
		modulePath: modulePath,
		factory:    factory,
		opts:       opts,
		logger:     logger.With("shim", identity),
		tracer:     tracer,
	}

	r.restore()

	r.mu.Lock()
	if !r.initialised {
		r.timer = time.AfterFunc(opts.Delay, r.checkInitialised)
	}
	r.mu.Unlock()

	return r
}

// Identity returns the shim identity.
func (r *Registrar) Identity() string {
	return r.identity
}

// Init publishes the module for app. Calling Init again re-publishes under
// the new key; an entry under a previous key is left in place.
func (r *Registrar) Init(app string) error {
	return r.InitContext(context.Background(), app)
}

// InitContext is Init with a parent context for tracing.
func (r *Registrar) InitContext(ctx context.Context, app string) error {
	_, span := r.tracer.Start(ctx, "shim.Init", trace.WithAttributes(
		attribute.String("shim.identity", r.identity),
		attribute.String("shim.module_path", r.modulePath),
		attribute.String("shim.app", app),
	))
	defer span.End()

	if err := r.init(app); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("shim.key", r.Key()))
	return nil
}

func (r *Registrar) init(app string) error {
	key, err := mangle.MangleWith(r.opts.Mode, app, r.modulePath)
	if err != nil {
		return err
	}
	if r.opts.Registry == nil {
		return errors.New("H120").
			WithDetail(fmt.Sprintf("shim %s has no registry", r.identity)).
			Wrap(registry.ErrNotOpen)
	}

	// The factory may call back into the registrar.
	module := r.factory()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.opts.Registry.Publish(registry.Entry{
		Key:    key,
		Module: module,
		Owner:  r.identity,
		App:    app,
		Epoch:  r.epoch,
	}); err != nil {
		return err
	}

	if r.initialised && r.appName != app {
		r.logger.Warn("shim re-initialised with a different application",
			"previousApp", r.appName,
			"previousKey", r.key,
			"app", app,
			"key", key,
		)
	}

	r.initialised = true
	r.appName = app
	r.key = key
	r.stopTimerLocked()

	r.logger.Debug("native module registered", "key", key, "epoch", r.epoch)
	return nil
}

// Initialised reports whether Init has succeeded.
func (r *Registrar) Initialised() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialised
}

// Key returns the mangled key of the last successful Init, or "".
func (r *Registrar) Key() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key
}

// State returns a snapshot of the registration state.
func (r *Registrar) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Identity:    r.identity,
		ModulePath:  r.modulePath,
		Initialised: r.initialised,
		AppName:     r.appName,
		Key:         r.key,
		Epoch:       r.epoch,
	}
}

// Teardown ends this registrar for a hot replacement. When the registrar is
// initialised and a handoff store is configured, its application identifier
// is saved for the replacement. The registry entry is left in place.
func (r *Registrar) Teardown() error {
	r.mu.Lock()
	r.stopTimerLocked()
	r.closed = true
	msg := handoff.Message{
		Identity:   r.identity,
		AppName:    r.appName,
		Key:        r.key,
		Epoch:      r.epoch,
		CapturedAt: time.Now(),
	}
	capture := r.initialised && r.opts.Handoff != nil
	r.mu.Unlock()

	if !capture {
		return nil
	}
	if err := r.opts.Handoff.Put(msg); err != nil {
		return err
	}
	r.logger.Debug("registration handed off", "app", msg.AppName, "epoch", msg.Epoch)
	return nil
}

// Close cancels the missed-init warning without a handoff.
func (r *Registrar) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
	r.closed = true
}

func (r *Registrar) restore() {
	if r.opts.Handoff == nil {
		return
	}

	msg, ok, err := r.opts.Handoff.Take(r.identity)
	if err != nil {
		r.logger.Warn("reload state unavailable", "error", err)
		return
	}
	if !ok || msg.AppName == "" {
		return
	}

	r.mu.Lock()
	r.epoch = msg.Epoch + 1
	r.mu.Unlock()

	if err := r.Init(msg.AppName); err != nil {
		r.logger.Warn("could not restore registration", "app", msg.AppName, "error", err)
		return
	}
	r.logger.Debug("registration restored", "app", msg.AppName, "epoch", msg.Epoch+1)
}

func (r *Registrar) checkInitialised() {
	r.mu.Lock()
	r.timer = nil
	missed := !r.initialised && !r.closed
	r.mu.Unlock()

	if !missed {
		return
	}

	r.logger.Warn("native module was not initialised",
		"hint", fmt.Sprintf("you must call %s.Init(appName) to make this work", r.identity),
		"modulePath", r.modulePath,
	)
	if r.opts.OnMissedInit != nil {
		r.opts.OnMissedInit(r.identity)
	}
}

func (r *Registrar) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
