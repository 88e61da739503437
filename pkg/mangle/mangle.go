// Package mangle derives registry keys for native modules.
//
// A key is composed from an application identifier of the form "owner/name"
// and a dotted module path:
//
//	_<owner>$<name>$<module>
//
// In ModeCompat, the default, only the first "-" of the name and the first
// "." of the module path are replaced with "_":
//
//	Mangle("author/my-app", "Native.Something") // "_author$my_app$Native_Something"
//	Mangle("a/x-y-z", "M")                       // "_a$x_y-z$M"
//
// ModeFull replaces every "-" in owner and name and every "." in the module
// path. It must be selected explicitly.
package mangle

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/vango-dev/hotshim/internal/errors"
)

// Sentinel errors. Errors returned by this package wrap one of these.
var (
	ErrInvalidIdentifier = stderrors.New("invalid identifier")
	ErrInvalidKey        = stderrors.New("invalid registry key")
	ErrUnknownMode       = stderrors.New("unknown mangle mode")
)

const (
	appSeparator    = "/"
	keyPrefix       = "_"
	keyDelimiter    = "$"
	moduleDelimiter = "."
)

// Mode selects how separators are rewritten.
type Mode int

const (
	// ModeCompat replaces only the first "-" in the name and the first "."
	// in the module path.
	ModeCompat Mode = iota

	// ModeFull replaces every "-" in owner and name and every "." in the
	// module path.
	ModeFull
)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeCompat:
		return "compat"
	case ModeFull:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as used in hotshim.json and on the command
// line. The empty string means ModeCompat.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "compat":
		return ModeCompat, nil
	case "full":
		return ModeFull, nil
	}
	return ModeCompat, errors.New("H104").
		WithDetail(fmt.Sprintf("%q is not a mangle mode", s)).
		WithSuggestion(`Use "compat" or "full"`).
		Wrap(ErrUnknownMode)
}

// Mangle derives the registry key for a module in ModeCompat.
func Mangle(app, modulePath string) (string, error) {
	return MangleWith(ModeCompat, app, modulePath)
}

// MangleWith derives the registry key for a module using the given mode.
func MangleWith(mode Mode, app, modulePath string) (string, error) {
	owner, name, err := splitApp(app)
	if err != nil {
		return "", err
	}
	if err := checkModulePath(modulePath); err != nil {
		return "", err
	}

	switch mode {
	case ModeCompat:
		name = strings.Replace(name, "-", "_", 1)
		modulePath = strings.Replace(modulePath, moduleDelimiter, "_", 1)
	case ModeFull:
		owner = strings.ReplaceAll(owner, "-", "_")
		name = strings.ReplaceAll(name, "-", "_")
		modulePath = strings.ReplaceAll(modulePath, moduleDelimiter, "_")
	default:
		return "", errors.New("H104").
			WithDetail(mode.String() + " is not a mangle mode").
			Wrap(ErrUnknownMode)
	}

	return keyPrefix + owner + keyDelimiter + name + keyDelimiter + modulePath, nil
}

// ValidateApp reports whether app is a usable application identifier.
func ValidateApp(app string) error {
	_, _, err := splitApp(app)
	return err
}

func splitApp(app string) (owner, name string, err error) {
	if strings.Contains(app, keyDelimiter) {
		return "", "", invalidApp(app, `it contains "$"`)
	}
	parts := strings.Split(app, appSeparator)
	if len(parts) != 2 {
		return "", "", invalidApp(app, fmt.Sprintf("it has %d slash-separated segments, want 2", len(parts)))
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", invalidApp(app, "owner and name must both be non-empty")
	}
	return parts[0], parts[1], nil
}

func checkModulePath(modulePath string) error {
	var reason string
	switch {
	case modulePath == "":
		reason = "it is empty"
	case strings.Contains(modulePath, keyDelimiter):
		reason = `it contains "$"`
	default:
		return nil
	}
	return errors.New("H102").
		WithDetail(fmt.Sprintf("module path %q is invalid: %s", modulePath, reason)).
		Wrap(ErrInvalidIdentifier)
}

func invalidApp(app, reason string) error {
	return errors.New("H101").
		WithDetail(fmt.Sprintf("application identifier %q is invalid: %s", app, reason)).
		WithSuggestion(`Use the "owner/name" form, e.g. "author/my-app"`).
		Wrap(ErrInvalidIdentifier)
}
