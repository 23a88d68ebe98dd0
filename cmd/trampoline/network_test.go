package trampoline_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/cmd/trampoline"
	"github.com/manifest-network/trampoline/internal/ckbconfig"
	"github.com/manifest-network/trampoline/internal/compose"
	"github.com/manifest-network/trampoline/internal/docker"
	"github.com/manifest-network/trampoline/internal/network"
	"github.com/manifest-network/trampoline/internal/project"
	"github.com/manifest-network/trampoline/internal/testutil"
)

const nodeConfig = `
data_dir = "data"

[chain]
spec = { file = "specs/dev.toml" }

[rpc]
listen_address = "0.0.0.0:8114"
`

func TestNetworkLifecycle(t *testing.T) {
	root := newProject(t)
	api := testutil.NewFakeDocker()
	defer trampoline.SetDockerAPI(api)()
	run := func(args ...string) (string, error) {
		return testutil.Execute(t, trampoline.RootCmd, append(append([]string{"network"}, args...), "--project", root)...)
	}

	// Nothing to launch yet
	_, err := run("launch")
	assert.ErrorContains(t, err, "run `trampoline network init` first")

	out, err := run("init")
	require.NoError(t, err)
	assert.Contains(t, out, "Network name: demo-network")
	assert.Contains(t, out, "Network Services: [demo-node, demo-node-indexer]")
	assert.Equal(t, []string{"demo-network"}, api.Networks)
	chainDir := filepath.Join(root, project.Folder, "network")
	assert.Equal(t, []string{chainDir + ":/var/lib/ckb"}, api.Hosts["demo-node"].Binds)
	assert.FileExists(t, filepath.Join(chainDir, network.ConfigFile))

	_, err = run("init")
	assert.ErrorContains(t, err, "network already initialized")

	out, err = run("launch")
	require.NoError(t, err)
	assert.Contains(t, out, "Trampoline Network launched")
	assert.Equal(t, []string{"c1", "c2"}, api.Started)

	out, err = run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "SERVICE")
	assert.Contains(t, out, "demo-node-indexer")

	api.Logs = "Chain spec dev loaded\n"
	out, err = run("logs", "demo-node")
	require.NoError(t, err)
	assert.Contains(t, out, "Chain spec dev loaded")

	logFile := filepath.Join(t.TempDir(), "node.log")
	_, err = run("logs", "demo-node", "-o", logFile)
	require.NoError(t, err)
	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "Chain spec dev loaded\n", string(b))

	out, err = run("config")
	require.NoError(t, err)
	assert.Contains(t, out, "[indexer]")
	assert.Contains(t, out, "Host: 127.0.0.1:8116")

	_, err = run("reset", "demo-node")
	require.NoError(t, err)
	_, err = run("reset", "unknown")
	assert.ErrorIs(t, err, network.ErrServiceNotFound)

	out, err = run("stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Trampoline Network stopped")
	assert.ElementsMatch(t, []string{"demo-node", "demo-node", "demo-node-indexer"}, api.Stopped)

	out, err = run("recreate")
	require.NoError(t, err)
	assert.Contains(t, out, "Network Services: [demo-node, demo-node-indexer]")

	out, err = run("delete")
	require.NoError(t, err)
	assert.Contains(t, out, "Trampoline Network deleted")
	// recreate removed the network once already
	assert.Equal(t, []string{"demo-network", "demo-network"}, api.RemovedNet)
	assert.NoFileExists(t, filepath.Join(chainDir, network.ConfigFile))
}

func TestNetworkInitPorts(t *testing.T) {
	root := newProject(t)
	api := testutil.NewFakeDocker()
	defer trampoline.SetDockerAPI(api)()

	_, err := testutil.Execute(t, trampoline.RootCmd, "network", "init", "--project", root, "--node-port", "9000", "--indexer-port", "9000")
	assert.ErrorContains(t, err, "invalid Network configuration")

	_, err = testutil.Execute(t, trampoline.RootCmd, "network", "init", "--project", root, "--node-port", "9114", "--pull")
	require.NoError(t, err)
	assert.Len(t, api.Pulled, 2)
	assert.Equal(t, "9114", api.Hosts["demo-node"].PortBindings["8114/tcp"][0].HostPort)
	assert.Equal(t, "8116", api.Hosts["demo-node-indexer"].PortBindings["8116/tcp"][0].HostPort)
}

func TestNetworkInitCleanup(t *testing.T) {
	root := newProject(t)
	api := testutil.NewFakeDocker()
	defer trampoline.SetDockerAPI(api)()
	api.CreateErr = map[string]error{"demo-node-indexer": errors.New("port is already allocated")}
	configPath := filepath.Join(root, project.Folder, "network", network.ConfigFile)

	_, err := testutil.Execute(t, trampoline.RootCmd, "network", "init", "--project", root)
	assert.ErrorContains(t, err, "port is already allocated")
	assert.Equal(t, []string{"demo-node"}, api.Removed)
	assert.Equal(t, []string{"demo-network"}, api.RemovedNet)
	assert.NoFileExists(t, configPath)

	api.CreateErr = nil
	out, err := testutil.Execute(t, trampoline.RootCmd, "network", "init", "--project", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Network Services: [demo-node, demo-node-indexer]")
	assert.FileExists(t, configPath)
}

func TestNetworkSetMiner(t *testing.T) {
	root := newProject(t)
	api := testutil.NewFakeDocker()
	defer trampoline.SetDockerAPI(api)()

	_, err := testutil.Execute(t, trampoline.RootCmd, "network", "init", "--project", root)
	require.NoError(t, err)
	ckbToml := filepath.Join(root, project.Folder, "network", "ckb.toml")
	require.NoError(t, os.WriteFile(ckbToml, []byte(nodeConfig), 0o644))

	_, err = testutil.Execute(t, trampoline.RootCmd, "network", "set-miner", "--project", root)
	assert.Error(t, err)

	_, err = testutil.Execute(t, trampoline.RootCmd, "network", "set-miner", "--project", root, "--lock-arg", "0x"+testLockArg)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo-node"}, api.Restarted)

	c, err := ckbconfig.Load(ckbToml)
	require.NoError(t, err)
	ba, err := c.Miner()
	require.NoError(t, err)
	assert.Equal(t, "0x"+testLockArg, ba.Args)

	_, err = testutil.Execute(t, trampoline.RootCmd, "network", "set-miner", "--project", root, "--lock-arg", "0x1234")
	assert.Error(t, err)
}

func TestNetworkMinerAndIndex(t *testing.T) {
	root := newProject(t)
	var ran [][]string
	defer trampoline.SetDockerRunner(func(_ context.Context, c *docker.Command) error {
		ran = append(ran, c.Args)
		return nil
	})()

	// The miner needs a block assembler
	ckbToml := filepath.Join(root, project.Folder, "network", "ckb.toml")
	require.NoError(t, os.WriteFile(ckbToml, []byte(nodeConfig), 0o644))
	_, err := testutil.Execute(t, trampoline.RootCmd, "network", "miner", "--project", root)
	assert.ErrorIs(t, err, ckbconfig.ErrNoMinerAddress)

	c, err := ckbconfig.Load(ckbToml)
	require.NoError(t, err)
	require.NoError(t, c.SetMinerLockArg(make([]byte, 20)))
	require.NoError(t, c.Save(ckbToml))

	_, err = testutil.Execute(t, trampoline.RootCmd, "network", "miner", "--project", root)
	require.NoError(t, err)
	_, err = testutil.Execute(t, trampoline.RootCmd, "network", "index", "--project", root)
	require.NoError(t, err)

	require.Len(t, ran, 2)
	assert.Equal(t, []string{"exec", "demo-node", "ckb", "miner", "-C", "/var/lib/ckb"}, ran[0])
	assert.Equal(t, []string{"container", "run", "--rm", "--detach"}, ran[1][:4])
	assert.Contains(t, ran[1], "--name")
	assert.Contains(t, ran[1], "demo-indexer")
	assert.Equal(t, []string{"-s", "/data", "-c", "http://127.0.0.1:8114", "-l", "0.0.0.0:8116"}, ran[1][len(ran[1])-6:])
}

func TestNetworkCompose(t *testing.T) {
	root := newProject(t)

	out, err := testutil.Execute(t, trampoline.RootCmd, "network", "compose", "--project", root)
	require.NoError(t, err)
	path := filepath.Join(root, "docker-compose.yml")
	assert.Contains(t, out, "Compose file written to "+path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	f, err := compose.Parse(b)
	require.NoError(t, err)
	assert.Len(t, f.Services, 3)
}

func TestNetworkRpc(t *testing.T) {
	srv := newRPCServer(t, map[string]func([]json.RawMessage) any{
		"get_tip_block_number": func([]json.RawMessage) any { return "0x10" },
		"get_live_cell": func(params []json.RawMessage) any {
			var withData bool
			if len(params) == 2 {
				_ = json.Unmarshal(params[1], &withData)
			}
			return map[string]any{"status": "unknown", "with_data": withData}
		},
	})

	out, err := testutil.Execute(t, trampoline.RootCmd, "network", "rpc", "get_tip_block_number", "--node-rpc", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"0x10"`)

	out, err = testutil.Execute(t, trampoline.RootCmd, "network", "rpc", "get_live_cell", `{"tx_hash":"0x00","index":"0x0"}`, "true", "--node-rpc", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"with_data": true`)

	_, err = testutil.Execute(t, trampoline.RootCmd, "network", "rpc", "no_such_method", "--node-rpc", srv.URL)
	assert.ErrorContains(t, err, "rpc no_such_method failed")
}
