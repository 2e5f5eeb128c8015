// SPDX-License-Identifier: GPL-3.0-or-later

package ipcow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpanID(t *testing.T) {
	spanID := NewSpanID()

	// Should be a valid UUID string
	parsed, err := uuid.Parse(spanID)
	require.NoError(t, err)

	// Should be version 7 (time-ordered)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewSpanIDUniqueness(t *testing.T) {
	// Generate multiple span IDs and verify they're all unique
	const count = 100
	seen := make(map[string]struct{}, count)

	for range count {
		spanID := NewSpanID()
		_, duplicate := seen[spanID]
		require.False(t, duplicate, "duplicate span ID generated: %s", spanID)
		seen[spanID] = struct{}{}
	}
}

// recordingLogger captures every call for assertion, keyed by level.
type recordingLogger struct {
	infoArgs  []any
	debugArgs []any
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.debugArgs = args }
func (l *recordingLogger) Info(msg string, args ...any)  { l.infoArgs = args }

func TestWithSpanIDPrependsSpanIDToEveryCall(t *testing.T) {
	inner := &recordingLogger{}
	spanID := NewSpanID()
	logger := WithSpanID(inner, spanID)

	logger.Info("listenerAccepting", "endpoint", "127.0.0.1:8080")
	assert.Equal(t, []any{"spanID", spanID, "endpoint", "127.0.0.1:8080"}, inner.infoArgs)

	logger.Debug("read", "n", 12)
	assert.Equal(t, []any{"spanID", spanID, "n", 12}, inner.debugArgs)
}
