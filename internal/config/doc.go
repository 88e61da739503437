// Package config provides configuration parsing for hotshim projects.
//
// The configuration is stored in hotshim.json at the project root. Every
// field is optional; a project without the file gets the defaults, which
// bundle src/index.js into public/bundle.js and serve on port 7654.
//
// # Configuration File Structure
//
//	{
//	  "appName": "author/my-app",
//	  "port": 7654,
//	  "entry": ["src/index.js"],
//	  "outdir": "public",
//	  "bundle": "bundle.js",
//	  "index": "public/index.html",
//	  "mangleMode": "compat",
//	  "modules": [
//	    {"identity": "ElmSomething", "path": "Native.Something"},
//	    {"identity": "ElmClock", "path": "Native.Clock", "exports": {"tick": 1000}}
//	  ],
//	  "dev": {
//	    "hotReload": true,
//	    "watch": ["src"],
//	    "initDelay": "1s",
//	    "handoffDir": ".hotshim/handoff"
//	  },
//	  "publish": {
//	    "bucket": "my-assets",
//	    "prefix": "app/",
//	    "region": "us-east-1"
//	  }
//	}
//
// The PORT environment variable overrides "port". "handoffDir" is optional:
// when set, registrations survive a server restart; when empty, reload state
// lives in memory and every start is a cold start.
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(".")
//	if err != nil {
//	    return err
//	}
//	cfg.ApplyEnv(os.Getenv)
//
//	fmt.Println("Listening on", cfg.URL())
package config
