package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the simctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simctl",
		Short: "simctl - NIP settlement simulator control",
		Long: `simctl runs transfers through an in-process settlement network and drives
the ops endpoints of a running simulator (bank outages, system issues, config).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newOutageCmd())
	root.AddCommand(newSystemIssueCmd())
	root.AddCommand(newBankStatusCmd())
	root.AddCommand(newBanksCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// Execute runs the root command
func Execute(version string) error {
	root := NewRootCmd()
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
