package corotask

import (
	"os"
	"sync/atomic"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// runtimeLogger wraps a logiface logger plus the three-level log level
// scheme from §6 (0 silent, 1 critical only, 2 verbose lifecycle
// tracing), mapped onto logiface's syslog-style levels: level 1 logs at
// logiface.LevelError (uncaught task failures, §7); level 2 additionally
// logs at logiface.LevelDebug (task/thread lifecycle transitions, matching
// the density of the implementation this runtime is modeled on, which
// prints a line for every start/finish).
type runtimeLogger struct {
	level  atomicLevel
	logger *logiface.Logger[*izerolog.Event]
}

func newRuntimeLogger(cfg *runtimeConfig) *runtimeLogger {
	l := cfg.logger
	if l == nil {
		l = logiface.New[*izerolog.Event](
			izerolog.WithZerolog(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()),
			logiface.WithLevel[*izerolog.Event](logiface.LevelTrace),
		)
	}
	rl := &runtimeLogger{logger: l}
	rl.level.store(cfg.logLevel)
	return rl
}

// critical logs an unhandled task failure or other error-worthy event,
// gated on log level >= 1.
func (rl *runtimeLogger) critical(msg string, task string, err error) {
	if rl.level.load() < 1 {
		return
	}
	b := rl.logger.Err()
	if task != "" {
		b = b.Str("task", task)
	}
	if err != nil {
		b = b.Err(err)
	}
	b.Log(msg)
}

// trace logs a verbose lifecycle event, gated on log level >= 2.
func (rl *runtimeLogger) trace(msg string, fields map[string]string) {
	if rl.level.load() < 2 {
		return
	}
	b := rl.logger.Debug()
	for k, v := range fields {
		b = b.Str(k, v)
	}
	b.Log(msg)
}

type atomicLevel struct {
	v atomic.Int32
}

func (a *atomicLevel) load() int {
	return int(a.v.Load())
}

func (a *atomicLevel) store(n int) {
	a.v.Store(int32(n))
}
