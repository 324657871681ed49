package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// errRunFailed is returned when --fail-on-error is set and requests failed.
// The summary has already been printed, so it is not reported again.
var errRunFailed = errors.New("run finished with failed requests")

// RootCmd represents the base command when called without any subcommands
var RootCmd = NewRootCmd()

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "chatload",
		Short:   "Load generator for the chat application API",
		Version: version,
		Long: `chatload simulates chat-application users against a running chat API.

Each simulated user registers (best effort) and logs in once when it starts,
then keeps calling the API with a random think time between actions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newMockCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil && !errors.Is(err, errRunFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the chatload version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatload %s\n", version)
		},
	}
}
