// Package discovery records the payloads observed from probed endpoints:
// an in-memory last-write-wins map for live queries, and a best-effort
// append-only log file for operators to grep after the fact.
//
// Grounded on original_source/src/core/discovery.rs's ServiceDiscovery.
package discovery

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bitloop/ipcow"
)

const separator = "--------------------------------------------------"

// Log tracks the last payload observed per peer and appends a human
// readable record to a log file for each observation.
type Log struct {
	logPath  string
	logger   ipcow.SLogger
	now      func() time.Time
	onRecord func()

	mu      sync.Mutex
	records map[netip.AddrPort]string
}

// Option configures a [*Log] constructed by [New].
type Option func(*Log)

// WithLogger overrides the logger used to report best-effort write
// failures. The default is [ipcow.DefaultSLogger].
func WithLogger(logger ipcow.SLogger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithNow overrides the clock used to timestamp records. Intended for
// tests.
func WithNow(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithOnRecord registers a callback invoked once per successful [Log.Record]
// call, after the in-memory map is updated. Used to wire a telemetry
// counter without this package depending on internal/telemetry.
func WithOnRecord(fn func()) Option {
	return func(l *Log) { l.onRecord = fn }
}

// New returns a *Log that appends records to logPath.
func New(logPath string, opts ...Option) *Log {
	l := &Log{
		logPath: logPath,
		logger:  ipcow.DefaultSLogger(),
		now:     time.Now,
		records: make(map[netip.AddrPort]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stores payload as the most recent observation from peer and
// best-effort appends a formatted record to the log file. Write failures
// are logged and otherwise ignored: discovery logging must never interfere
// with the connection handling it observes.
func (l *Log) Record(peer netip.AddrPort, payload string) {
	l.mu.Lock()
	l.records[peer] = payload
	l.mu.Unlock()

	if err := l.appendRecord(peer, payload); err != nil {
		l.logger.Debug("discovery: failed to append record", "peer", peer.String(), "err", err)
	}

	if l.onRecord != nil {
		l.onRecord()
	}
}

// Lookup returns the last payload recorded for peer, if any.
func (l *Log) Lookup(peer netip.AddrPort) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	payload, ok := l.records[peer]
	return payload, ok
}

// Len returns the number of distinct peers with a recorded payload.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Log) appendRecord(peer netip.AddrPort, payload string) error {
	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := fmt.Sprintf(
		"[%s] %s\n%s\n%s\n\n\n",
		l.now().Format("2006-01-02 15:04:05"),
		peer.String(),
		separator,
		strings.TrimSpace(payload),
	)
	_, err = f.WriteString(entry)
	return err
}
