// Package hoststatus implements a best-effort TCP-connect liveness tracker:
// it dials a host, records alive/dead state transitions, and appends a
// human-readable line to host_status.log on every transition.
//
// Grounded on original_source/src/modules/ping.rs's HostTracker, restated
// over [ipcow.ConnectFunc] instead of a raw SYN scan (Go has no portable
// raw-socket SYN scan without elevated privileges, so a plain TCP connect
// stands in for the original's syn_scan).
package hoststatus

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/bitloop/ipcow"
)

// connectTimeout bounds each liveness probe.
const connectTimeout = 200 * time.Millisecond

// State is a tracked host's last known liveness.
type State int

const (
	// StateUnknown is the zero value: no probe has completed yet.
	StateUnknown State = iota
	StateAlive
	StateDead
)

// status is the per-host bookkeeping mirroring HostStatus in the original.
type status struct {
	state         State
	lastAlive     time.Time
	lastDown      time.Time
	hasLastDown   bool
	totalDowntime time.Duration
}

// Tracker probes hosts for TCP liveness and logs alive/dead transitions.
type Tracker struct {
	logPath string
	logger  ipcow.SLogger
	now     func() time.Time
	connect *ipcow.ConnectFunc

	mu    sync.Mutex
	hosts map[netip.Addr]*status
}

// Option configures a [*Tracker] constructed by [New].
type Option func(*Tracker)

// WithLogger overrides the logger used to report append-log failures.
func WithLogger(logger ipcow.SLogger) Option {
	return func(tr *Tracker) { tr.logger = logger }
}

// WithNow overrides the clock used for timestamps and downtime accounting.
// Intended for tests.
func WithNow(now func() time.Time) Option {
	return func(tr *Tracker) { tr.now = now }
}

// New returns a *Tracker that probes hosts via cfg's dialer and appends
// transitions to logPath.
func New(cfg *ipcow.Config, logPath string, opts ...Option) *Tracker {
	tr := &Tracker{
		logPath: logPath,
		logger:  ipcow.DefaultSLogger(),
		now:     time.Now,
		connect: ipcow.NewConnectFunc(cfg, "tcp", cfg.Logger),
		hosts:   make(map[netip.Addr]*status),
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// Probe dials addr once with a short timeout, updates the tracked state for
// its address, and appends a log record on any alive<->dead transition. It
// never returns an error: a failed probe just means "dead", same as a
// refused or timed-out connect in the original.
func (tr *Tracker) Probe(ctx context.Context, addr netip.AddrPort) {
	probeCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := tr.connect.Call(probeCtx, addr)
	alive := err == nil
	if conn != nil {
		conn.Close()
	}

	tr.updateHostStatus(addr.Addr(), alive)
}

func (tr *Tracker) updateHostStatus(ip netip.Addr, alive bool) {
	tr.mu.Lock()
	now := tr.now()

	st, ok := tr.hosts[ip]
	if !ok {
		st = &status{state: StateAlive, lastAlive: now}
		tr.hosts[ip] = st
	}

	var event string
	switch {
	case alive && st.state == StateDead:
		st.lastAlive = now
		st.state = StateAlive
		if st.hasLastDown {
			st.totalDowntime += now.Sub(st.lastDown)
		}
		event = "RECOVERED"
	case !alive && st.state != StateDead:
		st.lastDown = now
		st.hasLastDown = true
		st.state = StateDead
		event = "DOWN"
	}

	snapshot := *st
	tr.mu.Unlock()

	if event == "" {
		return
	}
	if err := tr.appendRecord(ip, event, snapshot); err != nil {
		tr.logger.Debug("hoststatus: failed to append record", "ip", ip.String(), "err", err)
	}
}

// Status returns the last known state for ip, if any probe has completed.
func (tr *Tracker) Status(ip netip.Addr) (State, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	st, ok := tr.hosts[ip]
	if !ok {
		return StateUnknown, false
	}
	return st.state, true
}

func (tr *Tracker) appendRecord(ip netip.Addr, event string, st status) error {
	f, err := os.OpenFile(tr.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	lastDown := "N/A"
	if st.hasLastDown {
		lastDown = st.lastDown.Format("2006-01-02 15:04:05")
	}

	entry := fmt.Sprintf(
		"[%s] %s %s | Last alive: %s | Last down: %s | Total downtime: %.2fs\n",
		tr.now().Format("2006-01-02 15:04:05"),
		ip.String(),
		event,
		st.lastAlive.Format("2006-01-02 15:04:05"),
		lastDown,
		st.totalDowntime.Seconds(),
	)
	_, err = f.WriteString(entry)
	return err
}
