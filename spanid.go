package ipcow

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 representing a span.
//
// A span is a sequence of operation that can fail in a single, specific
// way. For example, a workflow to perform a TLS handshake with an endpoint
// or a single DNS-over-HTTPS exchange with an endpoint.
//
// We recommend using a span ID for uniquely identifying spans.
//
// The span terminology is borrowed from OTel.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}

// WithSpanID returns an [SLogger] that prepends a "spanID" key/value pair
// to every call it forwards to logger, so every log line emitted during a
// span (a listener's lifetime, one accepted connection, one calibrator
// run) can be grep-correlated.
func WithSpanID(logger SLogger, spanID string) SLogger {
	return spanScopedLogger{logger: logger, spanID: spanID}
}

type spanScopedLogger struct {
	logger SLogger
	spanID string
}

var _ SLogger = spanScopedLogger{}

// Debug implements [SLogger].
func (l spanScopedLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, append([]any{"spanID", l.spanID}, args...)...)
}

// Info implements [SLogger].
func (l spanScopedLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, append([]any{"spanID", l.spanID}, args...)...)
}
