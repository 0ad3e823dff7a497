// Package cmd provides the command-line interface of rubysim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rubysim",
		Short: "rubysim simulates a directory-based cache coherent memory system.",
		Long: `rubysim builds a system of L1 caches, directories and memories ` +
			`connected by a message network, and drives it with a random ` +
			`tester that checks every load against a reference model.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newListMemTypesCmd())
	root.AddCommand(newListProtocolsCmd())

	return root
}

// Execute adds all child commands to the root command and sets flags
// appropriately. The process exits through atexit so that recorders are
// flushed.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
