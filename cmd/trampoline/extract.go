package trampoline

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/trampoline/internal/config"
	"github.com/manifest-network/trampoline/internal/extractor"
	"github.com/manifest-network/trampoline/internal/output"
)

var extractConfig config.ExtractConfig

var ExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract dev chain data to various output formats",
	Long:  `Extract blocks and transactions of the development chain and output them in the specified format.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := RootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}

		extractConfig = config.LoadExtractConfigFromCLI()
		if len(args) > 0 {
			extractConfig.RpcURL = args[0]
		}
		if err := extractConfig.Validate(); err != nil {
			return fmt.Errorf("invalid Extract configuration: %w", err)
		}

		slog.Debug("Command-line arguments", "extractConfig", extractConfig)
		return nil
	},
}

func extract(outputHandler output.OutputHandler) error {
	return extractor.Extract(outputHandler, extractConfig)
}

func init() {
	ExtractCmd.PersistentFlags().Bool("live", false, "Enable live monitoring")
	ExtractCmd.PersistentFlags().Bool("reindex", false, "Reindex from genesis to the latest block (advanced)")
	ExtractCmd.PersistentFlags().Uint64P("start", "s", 0, "Start block height")
	ExtractCmd.PersistentFlags().Uint64P("stop", "e", 0, "Stop block height")
	ExtractCmd.PersistentFlags().UintP("block-time", "t", 2, "Block time in seconds")
	ExtractCmd.PersistentFlags().UintP("max-retries", "r", 3, "Maximum number of retries for failed block processing")
	ExtractCmd.PersistentFlags().UintP("max-concurrency", "c", 100, "Maximum block retrieval concurrency (advanced)")
	ExtractCmd.PersistentFlags().Bool("enable-prometheus", false, "Enable Prometheus metrics server")
	ExtractCmd.PersistentFlags().String("prometheus-addr", "0.0.0.0:2112", "Address and port of the Prometheus metrics server")
	ExtractCmd.MarkFlagsMutuallyExclusive("live", "stop")

	if err := viper.BindPFlags(ExtractCmd.PersistentFlags()); err != nil {
		slog.Error("Failed to bind ExtractCmd flags", "error", err)
	}

	ExtractCmd.AddCommand(postgresCmd)
	ExtractCmd.AddCommand(jsonCmd)
}
