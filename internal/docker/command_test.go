package docker

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContainer() Container {
	return Container{
		Name:    "test-container",
		Ports:   []Port{{Host: 7357, Container: 7357}},
		Volumes: []Volume{{Host: "/test/path/host", Container: "/test/path/container"}},
		Image:   Image{Name: "trampoline", Tag: "latest", FilePath: "./docker"},
	}
}

func TestContainerCommands(t *testing.T) {
	c := testContainer()
	tests := []struct {
		name string
		cmd  *Command
		want string
	}{
		{"CopyTo", CopyTo(c.Name, "./file.test", "/var/lib/ckb"), "container cp ./file.test test-container:/var/lib/ckb"},
		{"CopyFrom", CopyFrom(c.Name, "/var/lib/ckb/file.test", "."), "container cp test-container:/var/lib/ckb/file.test ."},
		{"Start", Start(c.Name), "container start test-container"},
		{"Stop", Stop(c.Name), "container stop test-container"},
		{"Pause", Pause(c.Name), "container pause test-container"},
		{"Unpause", Unpause(c.Name), "container unpause test-container"},
		{"Restart", Restart(c.Name), "container restart test-container"},
		{"Exec", Exec("demo-node", "ckb", "miner"), "exec demo-node ckb miner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.String())
		})
	}
}

func TestImageCommands(t *testing.T) {
	assert.Equal(t, "image build --rm ./docker -t trampoline:latest", BuildImage(Image{Name: "trampoline", Tag: "latest", FilePath: "./docker"}, true).String())
	assert.Equal(t, "image rm trampoline", RemoveImage(Image{Name: "trampoline"}).String())
}

func TestRunContainer(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	c := Container{
		Name:    "test-container",
		Ports:   []Port{{Host: 80, Container: 80}},
		Volumes: []Volume{{Host: ".", Container: "/data"}},
		Env:     map[string]string{"CKB_CHAIN": "dev", "A": "b"},
		Image:   Image{Name: "trampoline"},
	}
	want := "container run --rm --detach -p80:80 --name test-container -v" + cwd + ":/data -eA=b -eCKB_CHAIN=dev trampoline"
	assert.Equal(t, want, RunContainer(c, true, true).String())
}

func TestInitCkbVolume(t *testing.T) {
	cmds := InitCkbVolume("demo-node-chain-data")
	require.Len(t, cmds, 2)
	assert.Equal(t, "volume create demo-node-chain-data", cmds[0].String())
	assert.Contains(t, cmds[1].String(), "-vdemo-node-chain-data:/var/lib/ckb")
	assert.Contains(t, cmds[1].String(), "init --chain dev")
}

func TestRunFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd := Start("missing")
	cmd.Stdout, cmd.Stderr = nil, nil
	assert.Error(t, cmd.Run(ctx))
}
