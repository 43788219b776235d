package logging

import "sync/atomic"

var verboseEnabled atomic.Bool

// VerboseEnabled reports whether verbose logging is enabled. It gates
// capture of upstream request/response body snippets in hot paths.
func VerboseEnabled() bool {
	return verboseEnabled.Load()
}

// SetVerboseEnabled updates the verbose logging toggle. Called at startup
// and on configuration hot reload; log levels are unaffected.
func SetVerboseEnabled(enabled bool) {
	verboseEnabled.Store(enabled)
}
