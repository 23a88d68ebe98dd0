package network

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/internal/testutil"
)

func setup(t *testing.T) (*testutil.FakeDocker, *Network) {
	t.Helper()
	api := testutil.NewFakeDocker()
	n, err := New(context.Background(), api, "demo")
	require.NoError(t, err)
	_, err = n.AddCkb(context.Background(), "demo-node", []PortPair{{Container: "8114", Host: "8114"}})
	require.NoError(t, err)
	_, err = n.AddIndexer(context.Background(), "demo-node", []PortPair{{Container: "8116", Host: "8116"}})
	require.NoError(t, err)
	return api, n
}

func TestNewNetwork(t *testing.T) {
	api, n := setup(t)
	assert.Equal(t, []string{"demo-network"}, api.Networks)
	assert.Equal(t, "net-1", n.NetworkID)
	require.Len(t, n.Services, 2)

	node := api.Created["demo-node"]
	assert.Equal(t, CkbImage, node.Image)
	assert.Equal(t, []string{"run"}, []string(node.Cmd))
	assert.Equal(t, []string{"CKB_CHAIN=dev"}, node.Env)
	host := api.Hosts["demo-node"]
	assert.Equal(t, container.NetworkMode("net-1"), host.NetworkMode)
	assert.Equal(t, []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "8114"}}, host.PortBindings["8114/tcp"])

	indexer := api.Created["demo-node-indexer"]
	assert.Equal(t, IndexerImage, indexer.Image)
	assert.Equal(t, []string{"-s", "data", "-c", "http://demo-node:8114", "-l", "0.0.0.0:8116"}, []string(indexer.Cmd))
}

func TestAddCkbWithBinds(t *testing.T) {
	api := testutil.NewFakeDocker()
	n, err := New(context.Background(), api, "bound")
	require.NoError(t, err)
	s, err := n.AddCkb(context.Background(), "bound-node", nil, "/tmp/chain:/var/lib/ckb")
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/chain:/var/lib/ckb"}, s.Binds)
	assert.Equal(t, []string{"/tmp/chain:/var/lib/ckb"}, api.Hosts["bound-node"].Binds)

	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, n.Save(path))
	recreated, err := FromConfig(context.Background(), api, path)
	require.NoError(t, err)
	assert.Equal(t, s.Binds, recreated.Services[0].Binds)
}

func TestAddServiceErrors(t *testing.T) {
	_, n := setup(t)
	_, err := n.AddIndexer(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = n.AddCkb(context.Background(), "demo-node", nil)
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = n.AddIndexer(context.Background(), "demo-node", nil)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestDelete(t *testing.T) {
	api, n := setup(t)
	api.RemoveErr = map[string]error{"demo-node-indexer": errors.New("container is busy")}

	err := n.Delete(context.Background())
	assert.ErrorContains(t, err, "failed to remove container demo-node-indexer: container is busy")
	assert.Equal(t, []string{"demo-node"}, api.Removed)
	assert.Empty(t, api.RemovedNet)

	api.RemoveErr = map[string]error{"demo-node": errdefs.NotFound(errors.New("no such container"))}
	require.NoError(t, n.Delete(context.Background()))
	assert.ElementsMatch(t, []string{"demo-node", "demo-node-indexer"}, api.Removed)
	assert.Equal(t, []string{"demo-network"}, api.RemovedNet)
}

func TestRunStartsNodesBeforeIndexers(t *testing.T) {
	api, n := setup(t)
	require.NoError(t, n.Run(context.Background()))
	assert.Equal(t, []string{"c1", "c2"}, api.Started)
}

func TestResetAndStop(t *testing.T) {
	api, n := setup(t)
	require.NoError(t, n.Reset(context.Background(), "demo-node"))
	assert.Equal(t, []string{"demo-node"}, api.Stopped)
	assert.Equal(t, []string{"c1"}, api.Started)

	assert.ErrorIs(t, n.Reset(context.Background(), "other"), ErrServiceNotFound)

	require.NoError(t, n.Stop(context.Background()))
	assert.ElementsMatch(t, []string{"demo-node", "demo-node", "demo-node-indexer"}, api.Stopped)
}

func TestStatus(t *testing.T) {
	_, n := setup(t)
	statuses, err := n.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Running)
	assert.Equal(t, "8114/tcp:8114", statuses[0].Ports)

	var buf bytes.Buffer
	require.NoError(t, WriteStatusTable(&buf, statuses))
	assert.Contains(t, buf.String(), "demo-node-indexer")
	assert.Contains(t, buf.String(), "SERVICE")
}

func TestLogs(t *testing.T) {
	api, n := setup(t)
	api.Logs = "chain started\n"
	var buf bytes.Buffer
	require.NoError(t, n.Logs(context.Background(), "demo-node", &buf, false))
	assert.Equal(t, "chain started\n", buf.String())
	assert.ErrorIs(t, n.Logs(context.Background(), "other", &buf, false), ErrServiceNotFound)
}

func TestSaveLoadAndFromConfig(t *testing.T) {
	api, n := setup(t)
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, n.Save(path))

	loaded, err := Load(path, api)
	require.NoError(t, err)
	assert.Equal(t, n.Name, loaded.Name)
	assert.Equal(t, n.Services, loaded.Services)

	recreated, err := FromConfig(context.Background(), api, path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"demo-node", "demo-node-indexer"}, api.Removed)
	assert.Equal(t, []string{"demo-network"}, api.RemovedNet)
	assert.Equal(t, "net-2", recreated.NetworkID)
	require.Len(t, recreated.Services, 2)
	assert.Equal(t, KindCkb, recreated.Services[0].Kind)
	assert.Equal(t, "demo-node-indexer", recreated.Services[1].Name)
	assert.NotEqual(t, n.Services[0].ID, recreated.Services[0].ID)
}

func TestPullImages(t *testing.T) {
	api, n := setup(t)
	require.NoError(t, n.PullImages(context.Background()))
	assert.Equal(t, []string{CkbImage, IndexerImage}, api.Pulled)
}

func TestString(t *testing.T) {
	_, n := setup(t)
	s := n.String()
	assert.Contains(t, s, "Network name: demo-network")
	assert.Contains(t, s, "Network ID: net-1")
	assert.Contains(t, s, "[demo-node, demo-node-indexer]")
	assert.True(t, n.Contains("c2"))
	assert.False(t, n.Contains("c9"))
}
