package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// NetworkConfig drives the dev network commands.
type NetworkConfig struct {
	ProjectDir  string
	NodePort    uint16
	IndexerPort uint16
	PullImages  bool
}

func (c NetworkConfig) Validate() error {
	if c.ProjectDir == "" {
		return fmt.Errorf("missing project directory")
	}
	if c.NodePort == 0 || c.IndexerPort == 0 {
		return fmt.Errorf("node and indexer ports must be set")
	}
	if c.NodePort == c.IndexerPort {
		return fmt.Errorf("node and indexer cannot share port %d", c.NodePort)
	}
	return nil
}

func LoadNetworkConfigFromCLI() NetworkConfig {
	return NetworkConfig{
		ProjectDir:  viper.GetString("project"),
		NodePort:    viper.GetUint16("node-port"),
		IndexerPort: viper.GetUint16("indexer-port"),
		PullImages:  viper.GetBool("pull"),
	}
}
