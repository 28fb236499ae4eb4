// Package logstream builds the per-package loggers behind the ops, diag and
// trace streams.
package logstream

import (
	"io"
	"log"
)

// New returns a logger writing to w with the given prefix, or nil when w is
// nil so the stream is disabled.
func New(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}
