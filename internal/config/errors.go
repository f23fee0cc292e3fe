// Package config loads the proxy's startup configuration from the CLI
// port argument and the environment variables the system recognizes
// (thread-pool size, cache expiry, log level), and defines the shared error taxonomy every other
// internal package wraps errors into.
package config

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Sentinel error kinds. Call sites wrap these with
// github.com/pkg/errors.Wrap so errors.Cause recovers the kind while
// the wrapped message keeps call-site context.
var (
	// ErrConfig covers a bad port or a bad environment variable value.
	ErrConfig = errors.New("config error")
	// ErrSystem covers allocation, socket, bind, or listen failures.
	ErrSystem = errors.New("system error")
	// ErrParse covers a malformed HTTP request or response, or a
	// missing Host / Content-Length header.
	ErrParse = errors.New("parse error")
	// ErrNetwork covers timeouts, peer resets, and short writes beyond
	// retry budget.
	ErrNetwork = errors.New("network error")
	// ErrNotFound is returned by Cache.Delete when the key is absent.
	ErrNotFound = errors.New("not found")
)

// Is reports whether err was ultimately wrapped around kind.
func Is(err, kind error) bool {
	return stderrors.Is(err, kind)
}
