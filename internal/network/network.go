// Package network runs the local development network: ckb nodes and
// ckb-indexers on a private docker network.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/trampoline/internal/docker"
)

const (
	CkbImage     = "nervos/ckb:latest"
	IndexerImage = "nervos/ckb-indexer:latest"
	ConfigFile   = "network.toml"

	defaultNetworkID = "default-ckb"
)

var (
	ErrServiceNotFound = errors.New("service not found in current network config")
	ErrNodeNotFound    = errors.New("ckb node not found in current network config")
	ErrDuplicateName   = errors.New("service name already used in network")
)

type Kind string

const (
	KindCkb        Kind = "ckb"
	KindCkbIndexer Kind = "ckb-indexer"
)

// PortPair maps a container port to a host port.
type PortPair struct {
	Container string `toml:"container"`
	Host      string `toml:"host"`
}

// Service is a container of the network. Binds are host:container bind
// mounts.
type Service struct {
	Name  string     `toml:"name"`
	ID    string     `toml:"id"`
	Kind  Kind       `toml:"kind"`
	Ports []PortPair `toml:"ports"`
	Binds []string   `toml:"binds,omitempty"`
}

type Network struct {
	Name      string    `toml:"name"`
	NetworkID string    `toml:"network"`
	Services  []Service `toml:"services"`

	api docker.API
}

// DockerName is the name of the docker network backing n.
func DockerName(name string) string {
	return name + "-network"
}

// New creates the docker network for the project name.
func New(ctx context.Context, api docker.API, name string) (*Network, error) {
	resp, err := api.NetworkCreate(ctx, DockerName(name), types.NetworkCreate{CheckDuplicate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create network %s: %w", DockerName(name), err)
	}
	id := resp.ID
	if id == "" {
		id = defaultNetworkID
	}
	slog.Info("Network created", "network", DockerName(name), "id", id)
	return &Network{Name: name, NetworkID: id, api: api}, nil
}

// Load reads a saved network configuration.
func Load(path string, api docker.API) (*Network, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network config: %w", err)
	}
	var n Network
	if err := toml.Unmarshal(b, &n); err != nil {
		return nil, fmt.Errorf("failed to parse network config: %w", err)
	}
	n.api = api
	return &n, nil
}

func (n *Network) Save(path string) error {
	b, err := toml.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode network config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// FromConfig deletes the network saved at path and recreates it with the
// same services, nodes first so indexers can reach them.
func FromConfig(ctx context.Context, api docker.API, path string) (*Network, error) {
	old, err := Load(path, api)
	if err != nil {
		return nil, err
	}
	if err := old.Delete(ctx); err != nil {
		return nil, fmt.Errorf("failed to delete current network: %w", err)
	}
	n, err := New(ctx, api, old.Name)
	if err != nil {
		return nil, err
	}

	for _, kind := range []Kind{KindCkb, KindCkbIndexer} {
		specs := old.byKind(kind)
		spawned := make([]Service, len(specs))
		g, gCtx := errgroup.WithContext(ctx)
		for i, s := range specs {
			g.Go(func() error {
				var err error
				switch kind {
				case KindCkb:
					spawned[i], err = n.spawnCkb(gCtx, s.Name, s.Ports, s.Binds)
				default:
					spawned[i], err = n.spawnIndexer(gCtx, strings.TrimSuffix(s.Name, "-indexer"), s.Ports)
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, s := range spawned {
			n.addService(s)
		}
	}
	return n, nil
}

func (n *Network) byKind(kind Kind) []Service {
	var out []Service
	for _, s := range n.Services {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (n *Network) addService(s Service) {
	if !n.Contains(s.ID) {
		n.Services = append(n.Services, s)
	}
}

// Contains reports whether a container id belongs to the network.
func (n *Network) Contains(id string) bool {
	return slices.ContainsFunc(n.Services, func(s Service) bool { return s.ID == id })
}

func (n *Network) GetService(name string) (Service, bool) {
	i := slices.IndexFunc(n.Services, func(s Service) bool { return s.Name == name })
	if i < 0 {
		return Service{}, false
	}
	return n.Services[i], true
}

// PullImages fetches the node and indexer images.
func (n *Network) PullImages(ctx context.Context) error {
	for _, ref := range []string{CkbImage, IndexerImage} {
		rc, err := n.api.ImagePull(ctx, ref, types.ImagePullOptions{})
		if err != nil {
			return fmt.Errorf("failed to pull %s: %w", ref, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to pull %s: %w", ref, err)
		}
		slog.Info("Image pulled", "image", ref)
	}
	return nil
}

// AddCkb adds a dev chain node. The chain data lives in the container
// unless a bind for /var/lib/ckb is given.
func (n *Network) AddCkb(ctx context.Context, name string, ports []PortPair, binds ...string) (Service, error) {
	if _, ok := n.GetService(name); ok {
		return Service{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	s, err := n.spawnCkb(ctx, name, ports, binds)
	if err != nil {
		return Service{}, err
	}
	n.addService(s)
	return s, nil
}

// AddIndexer adds an indexer following the existing node named node.
func (n *Network) AddIndexer(ctx context.Context, node string, ports []PortPair) (Service, error) {
	if s, ok := n.GetService(node); !ok || s.Kind != KindCkb {
		return Service{}, fmt.Errorf("%w: %s", ErrNodeNotFound, node)
	}
	if _, ok := n.GetService(node + "-indexer"); ok {
		return Service{}, fmt.Errorf("%w: %s-indexer", ErrDuplicateName, node)
	}
	s, err := n.spawnIndexer(ctx, node, ports)
	if err != nil {
		return Service{}, err
	}
	n.addService(s)
	return s, nil
}

func portConfig(ports []PortPair) (nat.PortSet, nat.PortMap) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		port := nat.Port(p.Container + "/tcp")
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: p.Host}}
	}
	return exposed, bindings
}

func (n *Network) create(ctx context.Context, name string, kind Kind, cfg *container.Config, ports []PortPair, binds []string) (Service, error) {
	exposed, bindings := portConfig(ports)
	cfg.ExposedPorts = exposed
	host := &container.HostConfig{
		PortBindings: bindings,
		NetworkMode:  container.NetworkMode(n.NetworkID),
		Binds:        binds,
	}
	resp, err := n.api.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return Service{}, fmt.Errorf("failed to create %s container %s: %w", kind, name, err)
	}
	slog.Debug("Container created", "service", name, "id", resp.ID)
	return Service{Name: name, ID: resp.ID, Kind: kind, Ports: ports, Binds: binds}, nil
}

// spawnCkb relies on the image entrypoint to initialize an empty data
// directory for CKB_CHAIN.
func (n *Network) spawnCkb(ctx context.Context, name string, ports []PortPair, binds []string) (Service, error) {
	cfg := &container.Config{
		Image: CkbImage,
		Cmd:   []string{"run"},
		Env:   []string{"CKB_CHAIN=dev"},
	}
	return n.create(ctx, name, KindCkb, cfg, ports, binds)
}

func (n *Network) spawnIndexer(ctx context.Context, node string, ports []PortPair) (Service, error) {
	cfg := &container.Config{
		Image: IndexerImage,
		Cmd:   []string{"-s", "data", "-c", fmt.Sprintf("http://%s:8114", node), "-l", "0.0.0.0:8116"},
	}
	return n.create(ctx, node+"-indexer", KindCkbIndexer, cfg, ports, nil)
}

func (n *Network) startAll(ctx context.Context, services []Service) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, s := range services {
		g.Go(func() error {
			if err := n.api.ContainerStart(gCtx, s.ID, types.ContainerStartOptions{}); err != nil {
				return fmt.Errorf("failed to start %s: %w", s.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run starts every node, then every indexer.
func (n *Network) Run(ctx context.Context) error {
	if err := n.startAll(ctx, n.byKind(KindCkb)); err != nil {
		return err
	}
	slog.Info("Nodes started", "network", n.Name)
	if err := n.startAll(ctx, n.byKind(KindCkbIndexer)); err != nil {
		return err
	}
	slog.Info("Indexers started", "network", n.Name)
	return nil
}

func (n *Network) Stop(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, s := range n.Services {
		g.Go(func() error {
			if err := n.api.ContainerStop(gCtx, s.Name, container.StopOptions{}); err != nil {
				return fmt.Errorf("failed to stop %s: %w", s.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Reset stops and starts the service called name.
func (n *Network) Reset(ctx context.Context, name string) error {
	s, ok := n.GetService(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if err := n.api.ContainerStop(ctx, s.Name, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop %s: %w", s.Name, err)
	}
	if err := n.api.ContainerStart(ctx, s.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.Name, err)
	}
	slog.Info("Service restarted", "service", s.Name)
	return nil
}

// Restart restarts a container by name, whether or not it is part of the
// saved network.
func (n *Network) Restart(ctx context.Context, name string) error {
	if err := n.api.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart %s: %w", name, err)
	}
	return nil
}

// Logs copies the demultiplexed output of a service to w.
func (n *Network) Logs(ctx context.Context, name string, w io.Writer, follow bool) error {
	s, ok := n.GetService(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	rc, err := n.api.ContainerLogs(ctx, s.ID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Follow: follow})
	if err != nil {
		return fmt.Errorf("failed to read logs of %s: %w", s.Name, err)
	}
	defer rc.Close()
	if _, err := stdcopy.StdCopy(w, w, rc); err != nil {
		return fmt.Errorf("failed to copy logs of %s: %w", s.Name, err)
	}
	return nil
}

// Delete removes every container with its volumes, then the docker network.
// Containers that are already gone are skipped. The network is kept when a
// container could not be removed.
func (n *Network) Delete(ctx context.Context) error {
	errs := make([]error, len(n.Services))
	var g errgroup.Group
	for i, s := range n.Services {
		g.Go(func() error {
			err := n.api.ContainerRemove(ctx, s.Name, types.ContainerRemoveOptions{RemoveVolumes: true, Force: true})
			if errdefs.IsNotFound(err) {
				slog.Debug("Container already removed", "service", s.Name)
				return nil
			}
			if err != nil {
				slog.Warn("Failed to remove container", "service", s.Name, "error", err)
				errs[i] = fmt.Errorf("failed to remove container %s: %w", s.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if err := n.api.NetworkRemove(ctx, DockerName(n.Name)); err != nil {
		return fmt.Errorf("failed to remove network %s: %w", DockerName(n.Name), err)
	}
	slog.Info("Network deleted", "network", DockerName(n.Name))
	return nil
}

func (n *Network) String() string {
	names := make([]string, len(n.Services))
	for i, s := range n.Services {
		names[i] = s.Name
	}
	return fmt.Sprintf("Trampoline development network\nNetwork name: %s\nNetwork ID: %s\nNetwork Services: [%s]",
		DockerName(n.Name), n.NetworkID, strings.Join(names, ", "))
}
