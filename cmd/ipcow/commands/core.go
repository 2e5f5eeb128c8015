package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifoldco/promptui"

	"github.com/bitloop/ipcow"
	"github.com/bitloop/ipcow/internal/discovery"
	"github.com/bitloop/ipcow/internal/endpoint"
	"github.com/bitloop/ipcow/internal/listener"
	"github.com/bitloop/ipcow/internal/registry"
	"github.com/bitloop/ipcow/internal/telemetry"
)

// core bundles the wired handles a running server exposes to the CLI's
// per-mode reporting logic.
type core struct {
	manager   *listener.Manager
	registry  *registry.Registry
	discovery *discovery.Log
	telemetry *telemetry.Metrics
}

// promptEndpointSpecs reads the two freeform IP/port spec strings from
// standard input.
func promptEndpointSpecs() (ipSpec, portSpec string, err error) {
	ipPrompt := promptui.Prompt{Label: "IP spec (e.g. 192.168.1.X or 10.0.0.1-10.0.0.3)"}
	ipSpec, err = ipPrompt.Run()
	if err != nil {
		return "", "", fmt.Errorf("reading IP spec: %w", err)
	}

	portPrompt := promptui.Prompt{Label: "Port spec (e.g. 8000-8002 or 80,443)"}
	portSpec, err = portPrompt.Run()
	if err != nil {
		return "", "", fmt.Errorf("reading port spec: %w", err)
	}

	return ipSpec, portSpec, nil
}

// buildEndpoints expands ipSpec/portSpec into the bindable endpoint set.
// An empty result is fatal to the current mode.
func buildEndpoints(ipSpec, portSpec string) ([]endpoint.Endpoint, error) {
	ips, err := endpoint.ParseIPsWithOptions(ipSpec, allowHugeRange)
	if err != nil {
		return nil, err
	}
	ports, err := endpoint.ParsePorts(portSpec)
	if err != nil {
		return nil, err
	}

	endpoints := endpoint.Compose(ips, ports)
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("expanded endpoint set is empty")
	}
	return endpoints, nil
}

// startCore wires a fresh registry, discovery log, telemetry, and listener
// manager over endpoints, and starts Run in the background. The caller is
// responsible for cancelling ctx and waiting on the returned done channel.
func startCore(ctx context.Context, logger *slog.Logger, endpoints []endpoint.Endpoint) (*core, <-chan error) {
	cfg := ipcow.NewConfig()
	cfg.Logger = logger

	metrics := telemetry.New()
	reg := registry.New()
	log := discovery.New(discoveryPath,
		discovery.WithLogger(logger),
		discovery.WithOnRecord(metrics.DiscoveryRecordsTotal.Inc),
	)

	mgr := listener.New(endpoints, maxWorkers, cfg, reg, log, metrics)

	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()

	return &core{manager: mgr, registry: reg, discovery: log, telemetry: metrics}, done
}

// waitForShutdown blocks until SIGINT/SIGTERM, then cancels cancel and
// waits for done, returning its error.
func waitForShutdown(cancel context.CancelFunc, done <-chan error) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	cancel()
	return <-done
}
