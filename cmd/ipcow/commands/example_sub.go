package commands

import "github.com/spf13/cobra"

// exampleSubCmd is recognized and dispatched before mode-flag evaluation.
var exampleSubCmd = &cobra.Command{
	Use:   "example-sub",
	Short: "Print the endpoints an IP/port spec pair would expand to",
	Long: `example-sub takes an IP spec and a port spec as positional arguments
and prints the endpoints they would expand to, without binding anything.
Useful for checking the IP/port grammar before running a mode that binds.`,
	Args: cobra.ExactArgs(2),
	RunE: runExampleSub,
}

func runExampleSub(cmd *cobra.Command, args []string) error {
	endpoints, err := buildEndpoints(args[0], args[1])
	if err != nil {
		return err
	}
	for _, ep := range endpoints {
		cmd.Println(ep.String())
	}
	return nil
}
