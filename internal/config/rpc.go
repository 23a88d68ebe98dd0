package config

import (
	"fmt"
	"net/url"

	"github.com/spf13/viper"
)

type RpcConfig struct {
	NodeURL    string
	IndexerURL string
}

func (c RpcConfig) Validate() error {
	for name, raw := range map[string]string{"node": c.NodeURL, "indexer": c.IndexerURL} {
		if raw == "" {
			return fmt.Errorf("missing %s RPC address", name)
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid %s RPC address: %w", name, err)
		}
	}
	return nil
}

func LoadRpcConfigFromCLI() RpcConfig {
	return RpcConfig{
		NodeURL:    viper.GetString("node-rpc"),
		IndexerURL: viper.GetString("indexer-rpc"),
	}
}
