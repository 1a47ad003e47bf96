// Package teelogger fans go-kit log lines out to several loggers. The
// msibuild CLI uses it to copy console logs into the -logfile build
// log.
package teelogger

import (
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

type teeLogger []log.Logger

// New returns a logger writing to every non-nil logger given. With
// nothing to tee, the single logger (or a nop logger) is returned.
func New(loggers ...log.Logger) log.Logger {
	var l teeLogger
	for _, logger := range loggers {
		if logger != nil {
			l = append(l, logger)
		}
	}

	switch len(l) {
	case 0:
		return log.NewNopLogger()
	case 1:
		return l[0]
	}
	return l
}

// Log hands each logger its own copy of keyvals, since the build log
// rewrites long values in place. Every logger is tried, and the first
// error is returned.
func (l teeLogger) Log(keyvals ...interface{}) error {
	var (
		firstErr error
		failed   int
	)

	for _, logger := range l {
		kv := make([]interface{}, len(keyvals))
		copy(kv, keyvals)

		if err := logger.Log(kv...); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if failed > 1 {
		return errors.Wrapf(firstErr, "%d of %d loggers failed", failed, len(l))
	}
	return firstErr
}
