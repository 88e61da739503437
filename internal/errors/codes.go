package errors

import "sort"

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// codes maps error codes to their templates.
var codes = map[string]Template{
	// ============================================
	// Mangle Errors (H100-H119)
	// ============================================

	"H101": {
		Category: CategoryMangle,
		Message:  "Invalid application identifier",
		Detail:   `Application identifiers must have the form "owner/name" with exactly one slash and no "$".`,
	},
	"H102": {
		Category: CategoryMangle,
		Message:  "Invalid module path",
		Detail:   `Module paths must be non-empty and must not contain "$".`,
	},
	"H103": {
		Category: CategoryMangle,
		Message:  "Invalid registry key",
		Detail:   `Registry keys have the form "_owner$name$module".`,
	},
	"H104": {
		Category: CategoryMangle,
		Message:  "Unknown mangle mode",
		Detail:   `Supported modes are "compat" and "full".`,
	},

	// ============================================
	// Registry Errors (H120-H139)
	// ============================================

	"H120": {
		Category: CategoryRegistry,
		Message:  "Registry not initialised",
		Detail:   "Init must be called on the registry before modules are published.",
	},
	"H121": {
		Category: CategoryRegistry,
		Message:  "Registry shut down",
		Detail:   "The registry was shut down and no longer accepts modules.",
	},
	"H122": {
		Category: CategoryRegistry,
		Message:  "Handoff store failure",
		Detail:   "Reload state could not be read from or written to the handoff store.",
	},
	"H123": {
		Category: CategoryRegistry,
		Message:  "Unknown native module",
		Detail:   "No factory is registered for the module path and no exports were configured.",
	},

	// ============================================
	// Config Errors (H140-H159)
	// ============================================

	"H140": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "hotshim.json could not be read or parsed.",
	},
	"H141": {
		Category: CategoryConfig,
		Message:  "Configuration not found",
		Detail:   "No hotshim.json was found in the directory or any parent.",
	},
	"H142": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "Port must be between 0 and 65535.",
	},
	"H143": {
		Category: CategoryConfig,
		Message:  "Duplicate module identity",
		Detail:   "Each configured native module needs a unique identity.",
	},

	// ============================================
	// Bundle Errors (H160-H179)
	// ============================================

	"H160": {
		Category: CategoryBundle,
		Message:  "Bundle failed",
		Detail:   "esbuild reported errors. Check the output for details.",
	},
	"H161": {
		Category: CategoryBundle,
		Message:  "Bundler setup failed",
		Detail:   "The esbuild build context could not be created.",
	},
	"H162": {
		Category: CategoryBundle,
		Message:  "Write failed",
		Detail:   "Bundle output could not be written to the output directory.",
	},

	// ============================================
	// Publish Errors (H180-H199)
	// ============================================

	"H180": {
		Category: CategoryPublish,
		Message:  "Publish not configured",
		Detail:   "publish.bucket must be set in hotshim.json.",
	},
	"H181": {
		Category: CategoryPublish,
		Message:  "Upload failed",
		Detail:   "An object could not be uploaded to the bucket.",
	},
	"H182": {
		Category: CategoryPublish,
		Message:  "Missing credentials",
		Detail:   "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set.",
	},

	// ============================================
	// CLI Errors (H200-H219)
	// ============================================

	"H200": {
		Category: CategoryCLI,
		Message:  "Server failed",
		Detail:   "The development server stopped with an error.",
	},
}

// AllCodes returns all registered error codes in sorted order.
func AllCodes() []string {
	all := make([]string, 0, len(codes))
	for code := range codes {
		all = append(all, code)
	}
	sort.Strings(all)
	return all
}

// Lookup returns the template for an error code.
func Lookup(code string) (Template, bool) {
	t, ok := codes[code]
	return t, ok
}
