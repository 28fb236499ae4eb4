package monitoring

import "log"

// Logf is the process-level logger used by the registry, the response store
// and the CLI. It defaults to log.Printf and is redirected by SetLogger or
// ConfigureStreams.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
