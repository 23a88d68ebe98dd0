// Package ckbconfig edits the node's ckb.toml.
package ckbconfig

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/manifest-network/trampoline/sdk/types"
)

const blockAssemblerKey = "block_assembler"

var ErrNoMinerAddress = errors.New("No miner address set. Refer to `trampoline network set-miner --help` for more information.")

// BlockAssembler is the [block_assembler] section of ckb.toml.
type BlockAssembler struct {
	CodeHash string `toml:"code_hash"`
	HashType string `toml:"hash_type"`
	Args     string `toml:"args"`
	Message  string `toml:"message"`
}

// Config is a ckb.toml document. Sections the package does not know about
// are kept as-is.
type Config struct {
	doc map[string]any
}

func Parse(b []byte) (*Config, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ckb config: %w", err)
	}
	return &Config{doc: doc}, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ckb config: %w", err)
	}
	return Parse(b)
}

func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c.doc)
}

func (c *Config) Save(path string) error {
	b, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode ckb config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// Get returns a top-level value.
func (c *Config) Get(key string) (any, bool) {
	v, ok := c.doc[key]
	return v, ok
}

// Miner returns the configured block assembler.
func (c *Config) Miner() (BlockAssembler, error) {
	raw, ok := c.doc[blockAssemblerKey].(map[string]any)
	if !ok {
		return BlockAssembler{}, ErrNoMinerAddress
	}
	var ba BlockAssembler
	ba.CodeHash, _ = raw["code_hash"].(string)
	ba.HashType, _ = raw["hash_type"].(string)
	ba.Args, _ = raw["args"].(string)
	ba.Message, _ = raw["message"].(string)
	if ba.CodeHash == "" || ba.Args == "" {
		return BlockAssembler{}, ErrNoMinerAddress
	}
	return ba, nil
}

func (c *Config) SetBlockAssembler(ba BlockAssembler) {
	c.doc[blockAssemblerKey] = map[string]any{
		"code_hash": ba.CodeHash,
		"hash_type": ba.HashType,
		"args":      ba.Args,
		"message":   ba.Message,
	}
}

// SetMinerLockArg points block rewards at the sighash-all lock of lockArg.
func (c *Config) SetMinerLockArg(lockArg []byte) error {
	if len(lockArg) != 20 {
		return fmt.Errorf("invalid lock arg length %d, expected 20", len(lockArg))
	}
	c.SetBlockAssembler(BlockAssembler{
		CodeHash: types.SighashAllTypeHash.Hex(),
		HashType: types.HashTypeType.String(),
		Args:     types.Bytes(lockArg).String(),
		Message:  "0x",
	})
	return nil
}

// SetMinerPubkey is SetMinerLockArg with the lock arg derived from a
// compressed public key.
func (c *Config) SetMinerPubkey(pubkey []byte) error {
	if len(pubkey) != 33 {
		return fmt.Errorf("invalid public key length %d, expected 33", len(pubkey))
	}
	return c.SetMinerLockArg(types.Blake160(pubkey))
}
