package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coverline/agency-sdk/modules/agency/domain/ratetable"
	"github.com/coverline/agency-sdk/pkg/configuration"
)

func newRatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Override rate table tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configured override rate table",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := configuration.Use()
			table, err := ratetable.Load(conf.OverrideRateTablePath)
			if err != nil {
				return err
			}
			fmt.Printf("rate table %s is valid\n", conf.OverrideRateTablePath)
			fmt.Printf("max override level: %d\n", table.MaxLevel())
			for _, level := range table.Levels() {
				fmt.Printf("  level %d: %s\n", level, table.RateForLevel(level, 0))
			}
			return nil
		},
	})
	return cmd
}
