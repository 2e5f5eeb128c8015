// SPDX-License-Identifier: GPL-3.0-or-later

package telemetry_test

import (
	"testing"

	"github.com/bitloop/ipcow/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotStartsAtZero(t *testing.T) {
	m := telemetry.New()
	snap := m.Snapshot()

	assert.Zero(t, snap.Connections)
	assert.Zero(t, snap.BindFailures)
	assert.Zero(t, snap.DiscoveryRecords)
	assert.Zero(t, snap.CalibrationRuns)
}

func TestSnapshotReflectsIncrements(t *testing.T) {
	m := telemetry.New()

	m.ConnectionsTotal.Add(3)
	m.BindFailuresTotal.Inc()
	m.DiscoveryRecordsTotal.Add(2)
	m.CalibrationRunsTotal.Inc()

	snap := m.Snapshot()
	assert.Equal(t, 3.0, snap.Connections)
	assert.Equal(t, 1.0, snap.BindFailures)
	assert.Equal(t, 2.0, snap.DiscoveryRecords)
	assert.Equal(t, 1.0, snap.CalibrationRuns)
}

func TestNewRegistersDistinctInstances(t *testing.T) {
	a := telemetry.New()
	b := telemetry.New()

	a.ConnectionsTotal.Inc()
	assert.Zero(t, b.Snapshot().Connections)
}
