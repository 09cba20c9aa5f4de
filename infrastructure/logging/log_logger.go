package logging

import (
	"log"

	"ppn/application/logging"
)

type LogLogger struct {
	prefix string
}

// NewLogLogger adapts the stdlib logger. prefix tags the emitting component,
// e.g. "session: ".
func NewLogLogger(prefix string) logging.Logger {
	return &LogLogger{prefix: prefix}
}

func (l LogLogger) Printf(format string, v ...any) {
	log.Printf(l.prefix+format, v...)
}
