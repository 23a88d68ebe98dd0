package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// FakeDocker records the engine calls of the dev network. Container ids
// are c1, c2, ... in creation order; network ids are net-1, net-2, ...
type FakeDocker struct {
	mu         sync.Mutex
	nextID     int
	Networks   []string
	RemovedNet []string
	Created    map[string]*container.Config
	Hosts      map[string]*container.HostConfig
	Started    []string
	Stopped    []string
	Restarted  []string
	Removed    []string
	Pulled     []string
	Logs       string
	PingErr    error
	// CreateErr and RemoveErr fail the calls for the named container.
	CreateErr map[string]error
	RemoveErr map[string]error
}

func NewFakeDocker() *FakeDocker {
	return &FakeDocker{Created: map[string]*container.Config{}, Hosts: map[string]*container.HostConfig{}}
}

func (f *FakeDocker) Ping(context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.43"}, f.PingErr
}

func (f *FakeDocker) NetworkCreate(_ context.Context, name string, opts types.NetworkCreate) (types.NetworkCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !opts.CheckDuplicate {
		return types.NetworkCreateResponse{}, errors.New("duplicate check disabled")
	}
	f.Networks = append(f.Networks, name)
	return types.NetworkCreateResponse{ID: fmt.Sprintf("net-%d", len(f.Networks))}, nil
}

func (f *FakeDocker) NetworkRemove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RemovedNet = append(f.RemovedNet, id)
	return nil
}

func (f *FakeDocker) ImagePull(_ context.Context, ref string, _ types.ImagePullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulled = append(f.Pulled, ref)
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func (f *FakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.CreateErr[name]; err != nil {
		return container.CreateResponse{}, err
	}
	f.nextID++
	f.Created[name] = cfg
	f.Hosts[name] = host
	return container.CreateResponse{ID: fmt.Sprintf("c%d", f.nextID)}, nil
}

func (f *FakeDocker) ContainerStart(_ context.Context, id string, _ types.ContainerStartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = append(f.Started, id)
	return nil
}

func (f *FakeDocker) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = append(f.Stopped, id)
	return nil
}

func (f *FakeDocker) ContainerRestart(_ context.Context, id string, _ container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Restarted = append(f.Restarted, id)
	return nil
}

func (f *FakeDocker) ContainerRemove(_ context.Context, id string, opts types.ContainerRemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !opts.RemoveVolumes || !opts.Force {
		return errors.New("expected forced removal with volumes")
	}
	if err := f.RemoveErr[id]; err != nil {
		return err
	}
	f.Removed = append(f.Removed, id)
	return nil
}

func (f *FakeDocker) ContainerInspect(_ context.Context, _ string) (types.ContainerJSON, error) {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			State: &types.ContainerState{Running: true, StartedAt: "2024-01-01T00:00:00Z"},
		},
		NetworkSettings: &types.NetworkSettings{
			NetworkSettingsBase: types.NetworkSettingsBase{
				Ports: nat.PortMap{"8114/tcp": []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "8114"}}},
			},
		},
	}, nil
}

func (f *FakeDocker) ContainerLogs(_ context.Context, _ string, _ types.ContainerLogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	w := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	if _, err := w.Write([]byte(f.Logs)); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

func (f *FakeDocker) Close() error { return nil }
