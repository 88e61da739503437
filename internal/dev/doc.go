// Package dev provides the development server and live reload.
//
// This package implements:
//   - Bundling with esbuild, kept in memory
//   - File watching for script, CSS, template and asset changes
//   - WebSocket-based browser refresh and an error overlay
//   - Hosting of native modules across rebuilds
//
// # Architecture
//
// The development server consists of several components:
//
//   - Bundler: Builds the entry points incrementally with esbuild
//   - Watcher: Polls the file system for changes
//   - ReloadServer: Notifies browsers of changes via WebSocket
//   - ModuleHost: Owns the registry and the native module registrars
//   - Server: Routes HTTP requests to the components above
//
// # Usage
//
//	srv, err := dev.NewServer(dev.ServerOptions{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// # Hot Replacement
//
// Every successful rebuild after a script change cycles the ModuleHost:
// registrars are torn down into the handoff store and recreated, so modules
// that were initialised re-register under the next epoch without the page
// calling init again.
//
// # Hot Reload Protocol
//
// The browser connects to /_hotshim/reload via WebSocket.
// Messages are JSON-encoded:
//
//	{"type": "reload", "epoch": 3}    // Triggers full page reload
//	{"type": "css", "file": "..."}    // Triggers CSS-only reload
//	{"type": "error", "error": "..."} // Shows error overlay
//	{"type": "clear"}                 // Clears error overlay
package dev
