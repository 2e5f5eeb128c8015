package commands

import (
	"fmt"
	"log/slog"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

// menuChoice pairs a menu label with the mode it dispatches to. Choices
// 1..9 mirror the mode flags one-for-one; 9 exits.
type menuChoice struct {
	label string
	run   func(cmd *cobra.Command, logger *slog.Logger) error
}

var menuChoices = []menuChoice{
	{"Multi-port server", runMultiPortServer},
	{"Service discovery", runServiceDiscovery},
	{"Connection management", runConnectionMgmt},
	{"Web interface", func(cmd *cobra.Command, _ *slog.Logger) error {
		return runExternalStub(cmd, "web-interface", "status web endpoint")
	}},
	{"Fuzzing", func(cmd *cobra.Command, _ *slog.Logger) error {
		return runExternalStub(cmd, "fuzzing", "placeholder fuzzer module")
	}},
	{"Performance calibration", runPerformance},
	{"Error registry", runErrorRegistry},
	{"Test network", func(cmd *cobra.Command, _ *slog.Logger) error {
		return runExternalStub(cmd, "test-network", "raw-socket network experiments")
	}},
	{"Exit", nil},
}

// runMenu implements the interactive menu (choices 1..9, 9 exits), used
// when no mode flag suppresses it.
func runMenu(cmd *cobra.Command, logger *slog.Logger) error {
	items := make([]string, 0, len(menuChoices))
	for i, choice := range menuChoices {
		items = append(items, fmt.Sprintf("%d. %s", i+1, choice.label))
	}

	for {
		prompt := promptui.Select{Label: "ipcow", Items: items, Size: len(items)}
		i, _, err := prompt.Run()
		if err != nil {
			return fmt.Errorf("menu selection: %w", err)
		}

		choice := menuChoices[i]
		if choice.run == nil {
			return nil
		}
		if err := choice.run(cmd, logger); err != nil {
			return err
		}
	}
}
