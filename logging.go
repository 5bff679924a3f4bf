// logging.go - structured logging for the sampler package.
//
// A small Logger interface the rest of the package depends on, a
// zero-overhead no-op default, and a zerolog-backed concrete
// implementation for production use.
package sampler

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/rs/zerolog"
)

// Logger is the structured logging sink used throughout this package.
// Implementations must be safe for concurrent use; Warn/Error may be
// called from the resolver goroutine and from engine control paths
// concurrently.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

// noOpLogger discards everything; it is the default when no [WithLogger]
// option is supplied, so instrumentation cost is zero unless requested.
type noOpLogger struct{}

// NewNoOpLogger returns a Logger that discards all messages.
func NewNoOpLogger() Logger { return noOpLogger{} }

func (noOpLogger) Debug(string, ...any)        {}
func (noOpLogger) Info(string, ...any)         {}
func (noOpLogger) Warn(string, ...any)         {}
func (noOpLogger) Error(string, error, ...any) {}

// zerologLogger adapts a [zerolog.Logger] to [Logger].
type zerologLogger struct {
	z zerolog.Logger
}

// NewZerologLogger wraps z as a [Logger].
func NewZerologLogger(z zerolog.Logger) Logger {
	return &zerologLogger{z: z}
}

func fieldsToMap(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		m[key] = kv[i+1]
	}
	return m
}

func (l *zerologLogger) Debug(msg string, kv ...any) {
	l.z.Debug().Fields(fieldsToMap(kv)).Msg(msg)
}

func (l *zerologLogger) Info(msg string, kv ...any) {
	l.z.Info().Fields(fieldsToMap(kv)).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, kv ...any) {
	l.z.Warn().Fields(fieldsToMap(kv)).Msg(msg)
}

func (l *zerologLogger) Error(msg string, err error, kv ...any) {
	l.z.Error().Err(err).Fields(fieldsToMap(kv)).Msg(msg)
}

// diagnosticRates bounds how often each warning category may be logged,
// so a pathological workload (e.g. a thread whose CPU-time timer
// overruns on every tick) cannot turn sampling overhead into logging
// overhead.
var diagnosticRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// rateLimitedLogger wraps a Logger so that Warn/Error calls for a given
// category are throttled via a catrate.Limiter, while Debug/Info pass
// through unthrottled (they are expected to be low-volume or disabled in
// production).
type rateLimitedLogger struct {
	Logger
	limiter *catrate.Limiter
}

// newRateLimitedLogger wraps base with diagnostic-category throttling.
func newRateLimitedLogger(base Logger) Logger {
	if base == nil {
		base = NewNoOpLogger()
	}
	return &rateLimitedLogger{
		Logger:  base,
		limiter: catrate.NewLimiter(diagnosticRates),
	}
}

// warnRateLimited logs msg at Warn level at most at the configured rate
// for category; calls beyond that rate are silently dropped (and counted
// by the caller, typically via Stats, so information isn't lost, only
// the log line is).
func (l *rateLimitedLogger) warnRateLimited(category string, msg string, kv ...any) {
	if _, ok := l.limiter.Allow(category); ok {
		l.Warn(msg, kv...)
	}
}
