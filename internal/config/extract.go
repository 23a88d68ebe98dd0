package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type ExtractConfig struct {
	RpcURL           string
	MaxConcurrency   uint
	MaxRetries       uint
	BlockTime        uint
	BlockStart       uint64
	BlockStop        uint64
	LiveMonitoring   bool
	ReIndex          bool
	EnablePrometheus bool
	PrometheusAddr   string
}

func (c ExtractConfig) Validate() error {
	if c.RpcURL == "" {
		return fmt.Errorf("missing node RPC address")
	}
	if c.LiveMonitoring && c.BlockStop != 0 {
		return fmt.Errorf("cannot set --live and --stop flags together")
	}
	if c.LiveMonitoring && c.BlockTime == 0 {
		return fmt.Errorf("block time must be greater than 0 in live mode")
	}
	if c.ReIndex && c.BlockStart != 0 {
		return fmt.Errorf("cannot set --reindex and --start flags together")
	}
	if c.BlockStop != 0 && c.BlockStart > c.BlockStop {
		return fmt.Errorf("start block %d is greater than stop block %d", c.BlockStart, c.BlockStop)
	}
	if c.MaxConcurrency == 0 {
		return fmt.Errorf("max concurrency must be greater than 0")
	}
	if c.MaxRetries == 0 {
		return fmt.Errorf("max retries must be greater than 0")
	}
	if c.EnablePrometheus && c.PrometheusAddr == "" {
		return fmt.Errorf("missing Prometheus listen address")
	}
	return nil
}

func LoadExtractConfigFromCLI() ExtractConfig {
	return ExtractConfig{
		RpcURL:           viper.GetString("rpc"),
		MaxConcurrency:   viper.GetUint("max-concurrency"),
		MaxRetries:       viper.GetUint("max-retries"),
		BlockTime:        viper.GetUint("block-time"),
		BlockStart:       viper.GetUint64("start"),
		BlockStop:        viper.GetUint64("stop"),
		LiveMonitoring:   viper.GetBool("live"),
		ReIndex:          viper.GetBool("reindex"),
		EnablePrometheus: viper.GetBool("enable-prometheus"),
		PrometheusAddr:   viper.GetString("prometheus-addr"),
	}
}
