package ckbconfig

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type ChainSpec struct {
	File string `toml:"file"`
}

type MinerClient struct {
	RpcURL        string `toml:"rpc_url"`
	PollInterval  uint64 `toml:"poll_interval"`
	BlockOnSubmit bool   `toml:"block_on_submit"`
}

// MinerWorker is a dummy worker sealing a block every Value milliseconds.
type MinerWorker struct {
	WorkerType string `toml:"worker_type"`
	DelayType  string `toml:"delay_type"`
	Value      uint64 `toml:"value"`
}

type MinerConfig struct {
	DataDir string `toml:"data_dir"`
	Chain   struct {
		Spec ChainSpec `toml:"spec"`
	} `toml:"chain"`
	Logger struct {
		Filter      string `toml:"filter"`
		Color       bool   `toml:"color"`
		LogToFile   bool   `toml:"log_to_file"`
		LogToStdout bool   `toml:"log_to_stdout"`
	} `toml:"logger"`
	Miner struct {
		Client  MinerClient   `toml:"client"`
		Workers []MinerWorker `toml:"workers"`
	} `toml:"miner"`
}

// DefaultMinerConfig is a dev chain miner talking to the node at rpcURL.
func DefaultMinerConfig(rpcURL string) MinerConfig {
	var c MinerConfig
	c.DataDir = "data"
	c.Chain.Spec.File = "specs/dev.toml"
	c.Logger.Filter = "info"
	c.Logger.Color = true
	c.Logger.LogToFile = true
	c.Logger.LogToStdout = true
	c.Miner.Client = MinerClient{RpcURL: rpcURL, PollInterval: 1000, BlockOnSubmit: true}
	c.Miner.Workers = []MinerWorker{{WorkerType: "Dummy", DelayType: "Constant", Value: 5000}}
	return c
}

func (c MinerConfig) Save(path string) error {
	b, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode miner config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
