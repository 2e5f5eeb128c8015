package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
)

func runMultiPortServer(cmd *cobra.Command, logger *slog.Logger) error {
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

	cmd.Printf("Bound %d endpoint(s). Press Ctrl+C to stop.\n", len(endpoints))
	if err := waitForShutdown(cancel, done); err != nil {
		return err
	}

	cmd.Printf("Stopped. %d connection(s) accepted, %d bind failure(s), %d discovery record(s).\n",
		int64(c.telemetry.Snapshot().Connections),
		int64(c.telemetry.Snapshot().BindFailures),
		c.discovery.Len(),
	)
	return nil
}
