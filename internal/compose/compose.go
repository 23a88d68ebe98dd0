// Package compose renders docker-compose files for the dev environment.
package compose

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/manifest-network/trampoline/internal/ckbconfig"
)

const (
	Version     = "3"
	NodeImage   = "nervos/ckb"
	IndexerPort = 8116
)

type VolumeType string

const (
	VolumeTypeVolume VolumeType = "volume"
	VolumeTypeBind   VolumeType = "bind"
)

type Volume struct {
	Type   VolumeType `yaml:"type"`
	Source string     `yaml:"source"`
	Target string     `yaml:"target"`
}

type Service struct {
	Name        string   `yaml:"-"`
	Image       string   `yaml:"image"`
	Volumes     []Volume `yaml:"volumes,omitempty"`
	Expose      []string `yaml:"expose,omitempty"`
	Command     string   `yaml:"command,omitempty"`
	Environment []string `yaml:"environment,omitempty"`
	Ports       []string `yaml:"ports,omitempty"`
	Entrypoint  string   `yaml:"entrypoint,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
}

type VolumeSetup struct{}

type File struct {
	Version  string                 `yaml:"version"`
	Services map[string]Service     `yaml:"services"`
	Volumes  map[string]VolumeSetup `yaml:"volumes,omitempty"`
}

func New(services ...Service) *File {
	f := &File{Version: Version, Services: map[string]Service{}}
	for _, s := range services {
		f.Add(s)
	}
	return f
}

// Add registers s and declares its named volumes. Bind mounts need no
// declaration.
func (f *File) Add(s Service) {
	f.Services[s.Name] = s
	for _, v := range s.Volumes {
		if v.Type != VolumeTypeVolume {
			continue
		}
		if f.Volumes == nil {
			f.Volumes = map[string]VolumeSetup{}
		}
		f.Volumes[v.Source] = VolumeSetup{}
	}
}

func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

func (f *File) Save(path string) error {
	b, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode compose file: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse compose file: %w", err)
	}
	for name, s := range f.Services {
		s.Name = name
		f.Services[name] = s
	}
	return &f, nil
}

func devEnv(dev bool) []string {
	if dev {
		return []string{"CKB_CHAIN=dev"}
	}
	return nil
}

// NodeService is a ckb node publishing its RPC on rpcPort.
func NodeService(name string, rpcPort uint16, dev bool) Service {
	if rpcPort == 0 {
		rpcPort = 8114
	}
	return Service{
		Name:        name + "-node",
		Image:       NodeImage,
		Expose:      []string{"8114", "8115"},
		Volumes:     []Volume{{Type: VolumeTypeVolume, Source: name + "-node-chain-data", Target: "/var/lib/ckb"}},
		Command:     "run",
		Environment: devEnv(dev),
		Ports:       []string{fmt.Sprintf("%d:8114", rpcPort)},
	}
}

// MinerService mines on node's chain data with the config bind mounted from
// .trampoline/<name>/ckb-miner.toml.
func MinerService(name string, dev bool, node Service) Service {
	return Service{
		Name:   node.Name + "-miner-" + name,
		Image:  NodeImage,
		Expose: []string{"8114", "8115"},
		Volumes: []Volume{
			{Type: VolumeTypeVolume, Source: node.Name + "-chain-data", Target: "/var/lib/ckb"},
			{Type: VolumeTypeBind, Source: "./.trampoline/" + name + "/ckb-miner.toml", Target: "/var/lib/ckb/ckb-miner.toml"},
		},
		Command:     "miner",
		Environment: devEnv(dev),
		DependsOn:   []string{node.Name},
	}
}

func IndexerService(node Service, port uint16) Service {
	if port == 0 {
		port = IndexerPort
	}
	return Service{
		Name:      node.Name + "-indexer",
		Image:     "nervos/ckb-indexer:latest",
		Command:   fmt.Sprintf("-s data -c http://%s:8114 -l 0.0.0.0:%d", node.Name, IndexerPort),
		Ports:     []string{fmt.Sprintf("%d:%d", port, IndexerPort)},
		DependsOn: []string{node.Name},
	}
}

// WriteMinerConfig creates the bind mounted miner config of MinerService
// under root unless it already exists.
func WriteMinerConfig(root, name string, node Service) (string, error) {
	dir := filepath.Join(root, ".trampoline", name)
	path := filepath.Join(dir, "ckb-miner.toml")
	if _, err := os.Stat(path); err == nil {
		slog.Info("Miner configuration found", "path", path)
		return path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create miner config directory: %w", err)
	}
	slog.Info("Creating new miner config", "path", path)
	if err := ckbconfig.DefaultMinerConfig("http://" + node.Name + ":8114").Save(path); err != nil {
		return "", err
	}
	return path, nil
}
