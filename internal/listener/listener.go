// Package listener implements the Listener Manager: it binds a set of
// endpoints concurrently, accepts connections on each, and dispatches every
// accepted connection to the probe handler.
//
// Grounded on original_source/src/core/network.rs's ListenerManager, with
// the bind-setup semaphore narrowed to cover only the bind step (see
// Manager.runListener) rather than a listener's entire lifetime.
package listener

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bitloop/ipcow"
	"github.com/bitloop/ipcow/internal/discovery"
	"github.com/bitloop/ipcow/internal/endpoint"
	"github.com/bitloop/ipcow/internal/probe"
	"github.com/bitloop/ipcow/internal/registry"
	"github.com/bitloop/ipcow/internal/telemetry"
)

// State is the lifecycle state of one endpoint's listener.
type State int

const (
	// StatePending has not yet attempted a bind.
	StatePending State = iota
	// StateAccepting is bound and actively accepting connections.
	StateAccepting
	// StateBindFailed failed to bind and will never accept.
	StateBindFailed
	// StateClosed stopped accepting because the context was cancelled.
	StateClosed
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepting:
		return "accepting"
	case StateBindFailed:
		return "bind_failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Manager binds and serves a fixed set of endpoints.
type Manager struct {
	endpoints  []endpoint.Endpoint
	sem        *semaphore.Weighted
	registry   *registry.Registry
	discovery  *discovery.Log
	telemetry  *telemetry.Metrics
	cfg        *ipcow.Config
	logger     ipcow.SLogger
	handler    *probe.Handler

	mu     sync.Mutex
	states map[endpoint.Endpoint]State
}

// New builds a *Manager over endpoints, bounding bind-setup concurrency to
// maxWorkers simultaneous in-flight binds. reg and log are shared across
// every listener and every accepted connection.
func New(
	endpoints []endpoint.Endpoint,
	maxWorkers int64,
	cfg *ipcow.Config,
	reg *registry.Registry,
	log *discovery.Log,
	metrics *telemetry.Metrics,
) *Manager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Manager{
		endpoints: endpoints,
		sem:       semaphore.NewWeighted(maxWorkers),
		registry:  reg,
		discovery: log,
		telemetry: metrics,
		cfg:       cfg,
		logger:    cfg.Logger,
		handler:   probe.New(cfg, cfg.Logger, log),
		states:    make(map[endpoint.Endpoint]State, len(endpoints)),
	}
}

// State returns the current lifecycle state of ep, or StatePending if ep
// is unknown to this Manager.
func (m *Manager) State(ep endpoint.Endpoint) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[ep]
}

func (m *Manager) setState(ep endpoint.Endpoint, s State) {
	m.mu.Lock()
	m.states[ep] = s
	m.mu.Unlock()
}

// Run binds and serves every endpoint until ctx is done, then waits for
// every listener goroutine to finish before returning. A nil return means
// every listener reached a terminal state; Run itself never fails — bind
// and accept failures are classified, registered, and logged per-endpoint
// instead of aborting the whole run.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, ep := range m.endpoints {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			// Context already done before we could even attempt this bind.
			m.setState(ep, StateBindFailed)
			continue
		}

		wg.Add(1)
		go func(ep endpoint.Endpoint) {
			defer wg.Done()
			m.runListener(ctx, ep)
		}(ep)
	}

	wg.Wait()
	return nil
}

func (m *Manager) runListener(ctx context.Context, ep endpoint.Endpoint) {
	logger := ipcow.WithSpanID(m.logger, ipcow.NewSpanID())

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ep.String())
	m.sem.Release(1)
	if err != nil {
		m.reportBindFailure(ep, err)
		return
	}

	m.setState(ep, StateAccepting)
	logger.Info("listenerAccepting", "endpoint", ep.String())

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				m.setState(ep, StateClosed)
				return
			}
			class := m.cfg.ErrClassifier.Classify(err)
			id := m.registry.Register(err.Error())
			logger.Info("acceptFailed", "endpoint", ep.String(), "errID", id, "errClass", class)
			continue
		}

		if m.telemetry != nil {
			m.telemetry.ConnectionsTotal.Inc()
		}

		go func(conn net.Conn) {
			connLogger := ipcow.WithSpanID(logger, ipcow.NewSpanID())
			connLogger.Debug("connectionAccepted", "endpoint", ep.String(), "peer", conn.RemoteAddr().String())
			defer connLogger.Debug("connectionClosed", "endpoint", ep.String())

			watched, werr := (&ipcow.CancelWatchFunc{}).Call(ctx, conn)
			if werr != nil {
				conn.Close()
				return
			}
			m.handler.Handle(ctx, watched)
		}(conn)
	}
}

func (m *Manager) reportBindFailure(ep endpoint.Endpoint, err error) {
	m.setState(ep, StateBindFailed)
	class := m.cfg.ErrClassifier.Classify(err)
	id := m.registry.Register(err.Error())
	if m.telemetry != nil {
		m.telemetry.BindFailuresTotal.Inc()
	}
	m.logger.Info("listenerBindFailed", "endpoint", ep.String(), "errID", id, "errClass", class)
}
