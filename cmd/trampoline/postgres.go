package trampoline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/trampoline/internal/config"
	"github.com/manifest-network/trampoline/internal/metrics"
	"github.com/manifest-network/trampoline/internal/output/postgresql"
)

var postgresCmd = &cobra.Command{
	Use:   "postgres [rpc-address] [flags]",
	Short: "Extract dev chain data to a PostgreSQL database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		postgresConfig := config.LoadPostgresConfigFromCLI(extractConfig.MaxConcurrency)
		poolConfig, err := postgresConfig.PoolConfig()
		if err != nil {
			return fmt.Errorf("invalid PostgreSQL configuration: %w", err)
		}

		outputHandler, err := postgresql.NewPostgresOutputHandler(cmd.Context(), poolConfig)
		if err != nil {
			return fmt.Errorf("failed to create PostgreSQL output handler: %w", err)
		}
		defer outputHandler.Close()

		if extractConfig.EnablePrometheus {
			db := stdlib.OpenDBFromPool(outputHandler.GetPool())
			defer db.Close()
			server, err := metrics.CreateMetricsServer(db, extractConfig.PrometheusAddr)
			if err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					slog.Warn("Failed to shut down metrics server", "error", err)
				}
			}()
		}

		return extract(outputHandler)
	},
}

func init() {
	postgresCmd.Flags().StringP("postgres-conn", "p", config.DefaultPostgresConn, "PostgreSQL connection string")
	if err := viper.BindPFlags(postgresCmd.Flags()); err != nil {
		slog.Error("Failed to bind postgresCmd flags", "error", err)
	}
}
