package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/smearceptance/internal/monitoring"
)

// LogLevel selects which log streams are written.
type LogLevel int

const (
	LogQuiet LogLevel = iota
	LogOps
	LogDiag
	LogTrace
)

var levelNames = [...]string{"quiet", "ops", "diag", "trace"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLogLevel parses a level name, case-insensitively.
func ParseLogLevel(s string) (LogLevel, error) {
	for i, n := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return LogLevel(i), nil
		}
	}
	return LogQuiet, fmt.Errorf("unknown log level %q (want quiet, ops, diag or trace)", s)
}

// Writers returns the streams enabled at level l, all writing to w.
func (l LogLevel) Writers(w io.Writer) monitoring.LogWriters {
	var lw monitoring.LogWriters
	if l >= LogOps {
		lw.Ops = w
	}
	if l >= LogDiag {
		lw.Diag = w
	}
	if l >= LogTrace {
		lw.Trace = w
	}
	return lw
}
