// Package commands implements the ipcow CLI: mutually exclusive mode
// flags mirroring the interactive menu, plus the menu itself for when no
// mode flag is given.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logFormat      string
	allowHugeRange bool
	maxWorkers     int64
	metricsPath    string
	discoveryPath  string
	hostStatusPath string

	flagMultiPortServer  bool
	flagServiceDiscovery bool
	flagConnectionMgmt   bool
	flagWebInterface     bool
	flagFuzzing          bool
	flagPerformance      bool
	flagErrorRegistry    bool
	flagTestNetwork      bool
)

var rootCmd = &cobra.Command{
	Use:   "ipcow",
	Short: "Multi-endpoint TCP probe-and-respond server",
	Long: `ipcow binds a cross-product of (IP, port) pairs, accepts connections
concurrently, probes each peer, responds with a synthetic HTTP page, and
records a discovery entry per peer.

Run with no mode flag to enter the interactive menu, or pass exactly one
mode flag to select it directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRunE:       validateModeFlags,
	RunE:          runRoot,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&logFormat, "log-format", "text", "structured log output format: text or json")
	flags.BoolVar(&allowHugeRange, "allow-huge-range", false, "allow expanding CIDR blocks of 2^16 addresses or more")
	flags.Int64Var(&maxWorkers, "max-workers", 16, "maximum number of concurrent in-flight listener binds")
	flags.StringVar(&metricsPath, "metrics-path", "metrics.txt", "calibration cache file path")
	flags.StringVar(&discoveryPath, "discovery-log", "discovered_services.txt", "discovery log file path")
	flags.StringVar(&hostStatusPath, "host-status-log", "host_status.log", "host-status log file path")

	flags.BoolVar(&flagMultiPortServer, "multi-port-server", false, "bind an IP/port cross-product and serve the probe/response protocol")
	flags.BoolVar(&flagServiceDiscovery, "service-discovery", false, "run the server and report discovered service payloads")
	flags.BoolVar(&flagConnectionMgmt, "connection-mgmt", false, "run the server and report per-listener connection state")
	flags.BoolVar(&flagWebInterface, "web-interface", false, "status web endpoint (external collaborator, not implemented here)")
	flags.BoolVar(&flagFuzzing, "fuzzing", false, "placeholder fuzzer module (external collaborator, not implemented here)")
	flags.BoolVar(&flagPerformance, "performance", false, "run the worker calibrator and print a performance summary")
	flags.BoolVar(&flagErrorRegistry, "error-registry", false, "run the server and print the accumulated error registry")
	flags.BoolVar(&flagTestNetwork, "test-network", false, "raw-socket network experiments (external collaborator, not implemented here)")

	rootCmd.AddCommand(exampleSubCmd)
}

func validateModeFlags(cmd *cobra.Command, args []string) error {
	set := 0
	for _, v := range []bool{
		flagMultiPortServer, flagServiceDiscovery, flagConnectionMgmt, flagWebInterface,
		flagFuzzing, flagPerformance, flagErrorRegistry, flagTestNetwork,
	} {
		if v {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("at most one mode flag may be given")
	}
	if logFormat != "text" && logFormat != "json" {
		return fmt.Errorf("--log-format must be \"text\" or \"json\", got %q", logFormat)
	}
	return nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	logger := newLogger(logFormat)

	switch {
	case flagMultiPortServer:
		return runMultiPortServer(cmd, logger)
	case flagServiceDiscovery:
		return runServiceDiscovery(cmd, logger)
	case flagConnectionMgmt:
		return runConnectionMgmt(cmd, logger)
	case flagWebInterface:
		return runExternalStub(cmd, "web-interface", "status web endpoint")
	case flagFuzzing:
		return runExternalStub(cmd, "fuzzing", "placeholder fuzzer module")
	case flagPerformance:
		return runPerformance(cmd, logger)
	case flagErrorRegistry:
		return runErrorRegistry(cmd, logger)
	case flagTestNetwork:
		return runExternalStub(cmd, "test-network", "raw-socket network experiments")
	default:
		return runMenu(cmd, logger)
	}
}

// newLogger builds a *slog.Logger writing to stderr in the requested
// format. *slog.Logger satisfies [ipcow.SLogger].
func newLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func runExternalStub(cmd *cobra.Command, name, description string) error {
	cmd.Printf("%s (%s) is an external collaborator with no behavior of interest; nothing to run.\n", name, description)
	return nil
}
