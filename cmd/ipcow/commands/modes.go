package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bitloop/ipcow"
	"github.com/bitloop/ipcow/internal/calibrator"
	"github.com/bitloop/ipcow/internal/hoststatus"
	"github.com/bitloop/ipcow/internal/telemetry"
)

// runServiceDiscovery runs the core server and, on shutdown, prints every
// discovered peer/payload pair as a table.
func runServiceDiscovery(cmd *cobra.Command, logger *slog.Logger) error {
	ipSpec, portSpec, err := promptEndpointSpecs()
	if err != nil {
		return err
	}
	endpoints, err := buildEndpoints(ipSpec, portSpec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, done := startCore(ctx, logger, endpoints)
	peers := make([]netip.AddrPort, 0, len(endpoints))
	for _, ep := range endpoints {
		peers = append(peers, ep.AddrPort())
	}

	cmd.Printf("Bound %d endpoint(s). Press Ctrl+C to report discovered services.\n", len(endpoints))
	if err := waitForShutdown(cancel, done); err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Peer", "Payload"})
	for _, peer := range peers {
		if payload, ok := c.discovery.Lookup(peer); ok {
			table.Append([]string{peer.String(), payload})
		}
	}
	table.Render()
	return nil
}

// runConnectionMgmt runs the core server and, on shutdown, prints every
// endpoint's listener state plus a best-effort liveness check via
// internal/hoststatus.
func runConnectionMgmt(cmd *cobra.Command, logger *slog.Logger) error {
	ipSpec, portSpec, err := promptEndpointSpecs()
	if err != nil {
		return err
	}
	endpoints, err := buildEndpoints(ipSpec, portSpec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, done := startCore(ctx, logger, endpoints)

	cfg := ipcow.NewConfig()
	cfg.Logger = logger
	tracker := hoststatus.New(cfg, hostStatusPath)
	for _, ep := range endpoints {
		tracker.Probe(ctx, ep.AddrPort())
	}

	cmd.Printf("Bound %d endpoint(s). Press Ctrl+C to report connection state.\n", len(endpoints))
	if err := waitForShutdown(cancel, done); err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Endpoint", "Listener state", "Host liveness"})
	for _, ep := range endpoints {
		state, _ := tracker.Status(ep.Addr)
		table.Append([]string{ep.String(), c.manager.State(ep).String(), hostStateLabel(state)})
	}
	table.Render()
	return nil
}

// runErrorRegistry runs the core server and, on shutdown, prints every
// distinct error text the run accumulated.
func runErrorRegistry(cmd *cobra.Command, logger *slog.Logger) error {
	ipSpec, portSpec, err := promptEndpointSpecs()
	if err != nil {
		return err
	}
	endpoints, err := buildEndpoints(ipSpec, portSpec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, done := startCore(ctx, logger, endpoints)

	cmd.Printf("Bound %d endpoint(s). Press Ctrl+C to report the error registry.\n", len(endpoints))
	if err := waitForShutdown(cancel, done); err != nil {
		return err
	}

	entries := c.registry.Entries()
	if len(entries) == 0 {
		cmd.Println("Error registry is empty.")
		return nil
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "First seen", "Text"})
	for _, entry := range entries {
		table.Append([]string{entry.ID, entry.FirstSeen.Format("2006-01-02 15:04:05"), entry.Text})
	}
	table.Render()
	return nil
}

// runPerformance runs the worker calibrator and prints the resulting
// summary as a table, replacing the original's raw println block.
func runPerformance(cmd *cobra.Command, logger *slog.Logger) error {
	metrics := telemetry.New()

	cfg := calibrator.Config{
		MetricsPath: metricsPath,
		Logger:      logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	threads, err := calibrator.Calibrate(ctx, cfg)
	if err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}
	metrics.CalibrationRunsTotal.Inc()

	snapshot := metrics.Snapshot()
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Optimal worker count", fmt.Sprintf("%d", threads)})
	table.Append([]string{"Wall time", time.Since(start).Round(time.Millisecond).String()})
	table.Append([]string{"Calibration runs", fmt.Sprintf("%.0f", snapshot.CalibrationRuns)})
	table.Render()
	return nil
}

func hostStateLabel(s hoststatus.State) string {
	switch s {
	case hoststatus.StateAlive:
		return "alive"
	case hoststatus.StateDead:
		return "dead"
	default:
		return "unknown"
	}
}
