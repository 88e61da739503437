package dev

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/hotshim/internal/config"
	"github.com/vango-dev/hotshim/pkg/handoff"
	"github.com/vango-dev/hotshim/pkg/mangle"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var somethingModule = []config.ModuleConfig{
	{Identity: "ElmSomething", Path: "Native.Something"},
}

const somethingKey = "_author$my_app$Native_Something"

func TestModuleHost_StartWithAppName(t *testing.T) {
	host := NewModuleHost(ModuleHostConfig{
		Modules: somethingModule,
		AppName: "author/my-app",
		Logger:  discardLogger,
	})
	defer host.Stop()

	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mod, ok := host.Registry().Lookup(somethingKey)
	if !ok {
		t.Fatalf("module not registered; keys: %v", host.Registry().Keys())
	}
	if mod.(map[string]any)["whatever"] != "yes" {
		t.Errorf("module = %v", mod)
	}

	states := host.States()
	if len(states) != 1 || !states[0].Initialised || states[0].Key != somethingKey {
		t.Errorf("States() = %+v", states)
	}
}

func TestModuleHost_CycleKeepsRegistration(t *testing.T) {
	host := NewModuleHost(ModuleHostConfig{
		Modules: somethingModule,
		AppName: "author/my-app",
		Logger:  discardLogger,
	})
	defer host.Stop()

	if err := host.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 2; i++ {
		if err := host.Cycle(); err != nil {
			t.Fatalf("Cycle %d: %v", i, err)
		}
		states := host.States()
		if !states[0].Initialised || states[0].Epoch != i || states[0].AppName != "author/my-app" {
			t.Errorf("after cycle %d: %+v", i, states[0])
		}
		entry, ok := host.Registry().Entry(somethingKey)
		if !ok || entry.Epoch != i {
			t.Errorf("after cycle %d: entry = %+v, ok = %v", i, entry, ok)
		}
	}
	if host.Cycles() != 2 {
		t.Errorf("Cycles() = %d", host.Cycles())
	}
}

func TestModuleHost_FileHandoffAcrossHosts(t *testing.T) {
	dir := t.TempDir()

	first := NewModuleHost(ModuleHostConfig{
		Modules: somethingModule,
		AppName: "author/my-app",
		Handoff: handoff.NewFileStore(dir),
		Logger:  discardLogger,
	})
	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := first.Cycle(); err != nil {
		t.Fatal(err)
	}
	if err := first.Suspend(); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	second := NewModuleHost(ModuleHostConfig{
		Modules: somethingModule,
		Handoff: handoff.NewFileStore(dir),
		Logger:  discardLogger,
	})
	defer second.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	state := second.States()[0]
	if !state.Initialised || state.Epoch != 2 {
		t.Errorf("restored state = %+v", state)
	}
	if _, ok := second.Registry().Lookup(somethingKey); !ok {
		t.Error("restored module not registered")
	}
}

func TestModuleHost_MissedInit(t *testing.T) {
	missed := make(chan string, 4)
	host := NewModuleHost(ModuleHostConfig{
		Modules:      somethingModule,
		Delay:        20 * time.Millisecond,
		Logger:       discardLogger,
		OnMissedInit: func(identity string) { missed <- identity },
	})
	defer host.Stop()

	if err := host.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case identity := <-missed:
		if identity != "ElmSomething" {
			t.Errorf("missed init for %q", identity)
		}
	case <-time.After(time.Second):
		t.Fatal("missed-init callback not called")
	}

	if err := host.InitAll(context.Background(), "author/my-app"); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if _, ok := host.Registry().Lookup(somethingKey); !ok {
		t.Error("module not registered after InitAll")
	}
}

func TestModuleHost_InitAllDuringCycles(t *testing.T) {
	host := NewModuleHost(ModuleHostConfig{
		Modules: []config.ModuleConfig{
			{Identity: "ElmSomething", Path: "Native.Something"},
			{Identity: "ElmOther", Path: "Native.Other", Exports: map[string]any{"n": 1.0}},
		},
		Logger: discardLogger,
	})
	defer host.Stop()
	if err := host.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := host.Cycle(); err != nil {
				t.Errorf("Cycle: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := host.InitAll(context.Background(), "author/my-app"); err != nil {
				t.Errorf("InitAll: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	for _, state := range host.States() {
		if !state.Initialised || state.AppName != "author/my-app" {
			t.Errorf("live registrar left uninitialised: %+v", state)
		}
	}
}

func TestModuleHost_InitAllInvalid(t *testing.T) {
	host := NewModuleHost(ModuleHostConfig{Modules: somethingModule, Logger: discardLogger})
	defer host.Stop()
	if err := host.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := host.InitAll(context.Background(), "no-separator")
	if !stderrors.Is(err, mangle.ErrInvalidIdentifier) {
		t.Errorf("InitAll error = %v, want ErrInvalidIdentifier", err)
	}
	if host.Registry().Len() != 0 {
		t.Error("invalid init should not publish")
	}
}

func TestModuleHost_FullMode(t *testing.T) {
	host := NewModuleHost(ModuleHostConfig{
		Modules: []config.ModuleConfig{{Identity: "ElmDeep", Path: "Native.Deep.Module", Exports: map[string]any{"n": 1.0}}},
		AppName: "my-org/my-cool-app",
		Mode:    mangle.ModeFull,
		Logger:  discardLogger,
	})
	defer host.Stop()
	if err := host.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok := host.Registry().Lookup("_my_org$my_cool_app$Native_Deep_Module"); !ok {
		t.Errorf("keys = %v", host.Registry().Keys())
	}
}

func TestModuleHost_Errors(t *testing.T) {
	host := NewModuleHost(ModuleHostConfig{
		Modules: []config.ModuleConfig{{Identity: "ElmMissing", Path: "Native.Missing"}},
		Logger:  discardLogger,
	})
	defer host.Stop()

	if err := host.Cycle(); err == nil {
		t.Error("Cycle before Start should fail")
	}
	if err := host.Start(context.Background()); err == nil {
		t.Error("Start with an unknown module should fail")
	}
}
