// SPDX-License-Identifier: GPL-3.0-or-later

package hoststatus_test

import (
	"context"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitloop/ipcow"
	"github.com/bitloop/ipcow/internal/hoststatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackListener(t *testing.T) (net.Listener, netip.AddrPort) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := netip.MustParseAddrPort(ln.Addr().String())
	return ln, addr
}

func TestProbeAliveHostRecordsNoTransitionOnFirstSuccess(t *testing.T) {
	ln, addr := loopbackListener(t)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	logPath := filepath.Join(t.TempDir(), "host_status.log")
	tr := hoststatus.New(ipcow.NewConfig(), logPath)

	tr.Probe(context.Background(), addr)

	state, ok := tr.Status(addr.Addr())
	require.True(t, ok)
	assert.Equal(t, hoststatus.StateAlive, state)

	// A host that starts alive and stays alive never transitions, so no log
	// file is created.
	_, err := os.Stat(logPath)
	assert.True(t, os.IsNotExist(err))
}

func TestProbeDeadHostLogsDownTransition(t *testing.T) {
	// Reserve and immediately free a port so the probe targets a closed
	// listener, guaranteeing a connection refused.
	ln, addr := loopbackListener(t)
	require.NoError(t, ln.Close())

	logPath := filepath.Join(t.TempDir(), "host_status.log")
	tr := hoststatus.New(ipcow.NewConfig(), logPath)

	tr.Probe(context.Background(), addr)

	state, ok := tr.Status(addr.Addr())
	require.True(t, ok)
	assert.Equal(t, hoststatus.StateDead, state)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DOWN")
	assert.Contains(t, string(data), addr.Addr().String())
	assert.Contains(t, string(data), "Last down:")
}

func TestProbeRecoveryLogsRecoveredAndAccumulatesDowntime(t *testing.T) {
	ln, addr := loopbackListener(t)
	require.NoError(t, ln.Close())

	var tick time.Time
	logPath := filepath.Join(t.TempDir(), "host_status.log")
	tr := hoststatus.New(ipcow.NewConfig(), logPath, hoststatus.WithNow(func() time.Time { return tick }))

	tick = time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	tr.Probe(context.Background(), addr)
	state, _ := tr.Status(addr.Addr())
	assert.Equal(t, hoststatus.StateDead, state)

	// Bring the host back up at the same address by rebinding the port.
	ln2, err := net.ListenTCP("tcp", net.TCPAddrFromAddrPort(addr))
	require.NoError(t, err)
	defer ln2.Close()
	go func() {
		for {
			conn, err := ln2.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	tick = tick.Add(30 * time.Second)
	tr.Probe(context.Background(), addr)

	state, _ = tr.Status(addr.Addr())
	assert.Equal(t, hoststatus.StateAlive, state)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "RECOVERED")
	assert.Contains(t, string(data), "Total downtime: 30.00s")
}
