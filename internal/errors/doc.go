// Package errors provides structured, coded error messages for hotshim.
//
// Every error carries a code (e.g. "H101") that maps to a category, a short
// message and a longer detail. Builders add a suggestion, a source location
// or a wrapped cause:
//
//	err := errors.New("H101").
//	    WithDetail(`"my-app" has no owner segment`).
//	    WithSuggestion(`Use the "owner/name" form, e.g. "author/my-app"`).
//	    Wrap(mangle.ErrInvalidIdentifier)
//
//	fmt.Print(err.Format())
//
// # Categories
//
//   - config: hotshim.json loading and validation
//   - mangle: application identifiers and module paths
//   - registry: publishing native modules
//   - bundle: esbuild failures
//   - publish: uploads of built assets
//   - cli: command line usage
//
// Errors wrap their cause, so sentinel checks with the standard library
// errors.Is keep working through an *Error.
package errors
