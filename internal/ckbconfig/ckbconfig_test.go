package ckbconfig

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/sdk/account"
	"github.com/manifest-network/trampoline/sdk/types"
)

const sample = `
data_dir = "data"

[chain]
spec = { file = "specs/dev.toml" }

[rpc]
listen_address = "0.0.0.0:8114"
max_request_body_size = 10485760
`

func TestMinerNotSet(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	_, err = c.Miner()
	assert.ErrorIs(t, err, ErrNoMinerAddress)
}

func TestSetMinerLockArg(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	kp, err := account.KeyPairFromHex("009c0df368efef6084ba35ded33f05ef2a5f4b25d7841bce77e2449be9311dba")
	require.NoError(t, err)
	require.NoError(t, c.SetMinerPubkey(kp.PublicKey()))

	got, err := c.Miner()
	require.NoError(t, err)
	want := BlockAssembler{
		CodeHash: types.SighashAllTypeHash.Hex(),
		HashType: "type",
		Args:     "0x277940df3084136576140e7fa07c3961f0c4cca3",
		Message:  "0x",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("block assembler mismatch (-want +got):\n%s", diff)
	}

	assert.Error(t, c.SetMinerLockArg([]byte{1, 2}))
	assert.Error(t, c.SetMinerPubkey([]byte{1, 2}))
}

func TestSaveKeepsUnknownSections(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, c.SetMinerLockArg(make([]byte, 20)))

	path := filepath.Join(t.TempDir(), "ckb.toml")
	require.NoError(t, c.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	rpc, ok := reloaded.Get("rpc")
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8114", rpc.(map[string]any)["listen_address"])
	dataDir, _ := reloaded.Get("data_dir")
	assert.Equal(t, "data", dataDir)

	miner, err := reloaded.Miner()
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000", miner.Args)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("not = = toml"))
	assert.Error(t, err)
}

func TestDefaultMinerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckb-miner.toml")
	require.NoError(t, DefaultMinerConfig("http://demo-node:8114").Save(path))

	c, err := Load(path)
	require.NoError(t, err)
	miner, ok := c.Get("miner")
	require.True(t, ok)
	client := miner.(map[string]any)["client"].(map[string]any)
	assert.Equal(t, "http://demo-node:8114", client["rpc_url"])
	assert.Equal(t, true, client["block_on_submit"])
}
