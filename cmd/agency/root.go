package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agency",
		Short: "Agent hierarchy and override commission engine",
	}
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newRatesCmd())
	cmd.AddCommand(newStatsCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
