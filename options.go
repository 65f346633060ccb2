package corotask

import (
	"time"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
)

// runtimeConfig holds configuration assembled from RuntimeOption values.
type runtimeConfig struct {
	logger   *logiface.Logger[*izerolog.Event]
	logLevel int
	pacing   pacingConfig
}

// RuntimeOption configures a Runtime at construction.
type RuntimeOption interface {
	applyRuntime(*runtimeConfig)
}

type runtimeOptionFunc func(*runtimeConfig)

func (f runtimeOptionFunc) applyRuntime(c *runtimeConfig) { f(c) }

// WithLogger installs a pre-configured logiface logger (see logging.go),
// in place of the package default (writing to stderr via zerolog).
func WithLogger(l *logiface.Logger[*izerolog.Event]) RuntimeOption {
	return runtimeOptionFunc(func(c *runtimeConfig) { c.logger = l })
}

// WithLogLevel sets the initial log level: 0 silent, 1 critical only, 2
// verbose lifecycle tracing (§6).
func WithLogLevel(level int) RuntimeOption {
	return runtimeOptionFunc(func(c *runtimeConfig) { c.logLevel = level })
}

// WithPacing overrides the default pacing constants used by
// Thread.ExecuteTasksLoop (§4.3), resolving the ambiguity the source
// observes about these constants ("5ms... not tunable"): forcedSleepInterval
// is the maximum wall-clock time between forced sleeps on a busy
// runqueue; minCycleTime is the minimum duration of one drain cycle
// (a faster drain sleeps for the remainder); forcedSleepDuration is how
// long each forced sleep lasts.
func WithPacing(forcedSleepInterval, minCycleTime, forcedSleepDuration time.Duration) RuntimeOption {
	return runtimeOptionFunc(func(c *runtimeConfig) {
		c.pacing = pacingConfig{
			forcedSleepInterval: forcedSleepInterval,
			minCycleTime:        minCycleTime,
			forcedSleepDuration: forcedSleepDuration,
		}
	})
}

// pacingConfig is the resolved set of pacing constants for a Thread's
// execute loop.
type pacingConfig struct {
	forcedSleepInterval time.Duration
	minCycleTime        time.Duration
	forcedSleepDuration time.Duration
}

// defaultPacing follows spec.md's literal "~5ms" wording, diverging
// deliberately from the 1.0-second threshold in the implementation this
// runtime is modeled on (see DESIGN.md, Open Question 3).
var defaultPacing = pacingConfig{
	forcedSleepInterval: 5 * time.Millisecond,
	minCycleTime:        5 * time.Millisecond,
	forcedSleepDuration: 5 * time.Millisecond,
}

// ThreadOption configures a single Thread at construction, overriding the
// owning Runtime's defaults.
type ThreadOption interface {
	applyThread(*threadConfig)
}

type threadConfig struct {
	pacing pacingConfig
}

type threadOptionFunc func(*threadConfig)

func (f threadOptionFunc) applyThread(c *threadConfig) { f(c) }

// WithThreadPacing overrides this Thread's pacing constants only, leaving
// every other Thread created from the same Runtime on the Runtime-wide
// default (or its own WithPacing override).
func WithThreadPacing(forcedSleepInterval, minCycleTime, forcedSleepDuration time.Duration) ThreadOption {
	return threadOptionFunc(func(c *threadConfig) {
		c.pacing = pacingConfig{
			forcedSleepInterval: forcedSleepInterval,
			minCycleTime:        minCycleTime,
			forcedSleepDuration: forcedSleepDuration,
		}
	})
}

func resolveThreadOptions(base pacingConfig, opts []ThreadOption) *threadConfig {
	c := &threadConfig{pacing: base}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyThread(c)
	}
	return c
}

func resolveRuntimeOptions(opts []RuntimeOption) *runtimeConfig {
	c := &runtimeConfig{
		logLevel: 0,
		pacing:   defaultPacing,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyRuntime(c)
	}
	return c
}
