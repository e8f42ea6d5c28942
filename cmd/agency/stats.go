package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/coverline/agency-sdk/modules/agency/infrastructure/persistence"
	"github.com/coverline/agency-sdk/modules/agency/services"
	"github.com/coverline/agency-sdk/pkg/composables"
	"github.com/coverline/agency-sdk/pkg/configuration"
)

func newStatsCmd() *cobra.Command {
	var tenantFlag string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print hierarchy shape counters for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenantFlag)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}

			conf := configuration.Use()
			ctx := context.Background()

			pool, err := pgxpool.New(ctx, conf.Database.Opts)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer pool.Close()

			agents := persistence.NewAgentRepository()
			queries := services.NewQueryService(persistence.NewQueryRepository(agents), agents)

			stats, err := queries.HierarchyStats(composables.WithPool(ctx, pool), tenantID)
			if err != nil {
				return err
			}

			fmt.Printf("agents:    %d (%d active, %d roots)\n", stats.AgentCount, stats.ActiveCount, stats.RootCount)
			fmt.Printf("max depth: %d\n", stats.MaxDepth)
			fmt.Printf("overrides: %d\n", stats.OverrideCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
