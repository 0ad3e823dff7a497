package cmd

import (
	"github.com/sarchlab/rubysim/mem"
	"github.com/sarchlab/rubysim/ruby"
	"github.com/spf13/cobra"
)

func newListMemTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-mem-types",
		Short: "List the memory models that can back a directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return mem.DefaultRegistry().Describe(cmd.OutOrStdout())
		},
	}
}

func newListProtocolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-protocols",
		Short: "List the coherence protocols.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ruby.DefaultProtocolRegistry().Describe(cmd.OutOrStdout())
		},
	}
}
