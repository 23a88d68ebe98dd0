// Package project loads and scaffolds trampoline projects.
package project

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pelletier/go-toml/v2"

	"github.com/manifest-network/trampoline/internal/ckbconfig"
)

const (
	RootConfig = "trampoline.toml"
	EnvConfig  = "trampoline-env.toml"
	Folder     = ".trampoline"
	SchemasDir = "schemas"
	CacheDir   = "cache"
)

//go:embed templates
var templates embed.FS

var ErrProjectNotFound = errors.New("no trampoline project found")

// AlreadyExistsError is returned by Init when the project directory exists.
type AlreadyExistsError struct {
	Name string
	Path string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("invalid initialization: project %s already exists at %s", e.Name, e.Path)
}

// VirtualEnv describes one container of the dev environment.
type VirtualEnv struct {
	ContainerID    string `toml:"container_id,omitempty"`
	Host           string `toml:"host"`
	ContainerPort  uint16 `toml:"container_port"`
	HostPort       uint16 `toml:"host_port"`
	LocalBinding   string `toml:"local_binding"`
	ContainerMount string `toml:"container_mount"`
}

func (v VirtualEnv) String() string {
	return fmt.Sprintf("Host: %s:%d\nSaving data to local path: %s\n", v.Host, v.HostPort, v.LocalBinding)
}

type Env struct {
	Chain   VirtualEnv `toml:"chain"`
	Miner   VirtualEnv `toml:"miner"`
	Indexer VirtualEnv `toml:"indexer"`
}

type Config struct {
	Name string `toml:"name"`
	Env  *Env   `toml:"env,omitempty"`
}

type Project struct {
	Config  Config
	RootDir string
}

// Load finds the project containing dir, walking up its ancestors.
func Load(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	root, ok := findAncestor(abs, RootConfig)
	if !ok {
		return nil, fmt.Errorf("%w within directory %s", ErrProjectNotFound, dir)
	}

	b, err := os.ReadFile(filepath.Join(root, RootConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", RootConfig, err)
	}

	p := &Project{Config: cfg, RootDir: root}
	if p.HasEnvFile() {
		env, err := p.loadEnv()
		if err != nil {
			return nil, err
		}
		p.Config.Env = env
	}
	return p, nil
}

func findAncestor(dir, target string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, target)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Init scaffolds a new project named name under parent and loads it.
func Init(parent, name string) (*Project, error) {
	root := filepath.Join(parent, name)
	if _, err := os.Stat(root); err == nil {
		return nil, &AlreadyExistsError{Name: name, Path: root}
	}

	dirs := []string{
		"src",
		filepath.Join(Folder, "accounts"),
		filepath.Join(Folder, CacheDir),
		filepath.Join(Folder, "network", "indexer"),
		filepath.Join("generators", "src"),
		filepath.Join(SchemasDir, "src"),
		filepath.Join(SchemasDir, "mol"),
		"scripts",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	if err := renderTemplates(root, name); err != nil {
		return nil, err
	}
	slog.Info("Project initialized", "name", name, "path", root)
	return Load(root)
}

func renderTemplates(root, name string) error {
	data := struct{ ProjectName string }{ProjectName: name}
	return fs.WalkDir(templates, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		tmpl, err := template.ParseFS(templates, path)
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", path, err)
		}
		rel := strings.TrimSuffix(strings.TrimPrefix(path, "templates/"), ".tmpl")
		out, err := os.Create(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", rel, err)
		}
		defer out.Close()
		if err := tmpl.Execute(out, data); err != nil {
			return fmt.Errorf("failed to render template %s: %w", path, err)
		}
		return nil
	})
}

func (p *Project) Path(elem ...string) string {
	return filepath.Join(append([]string{p.RootDir}, elem...)...)
}

func (p *Project) HasEnvFile() bool {
	_, err := os.Stat(p.Path(EnvConfig))
	return err == nil
}

func (p *Project) AccountsDir() string {
	return p.Path(Folder, "accounts")
}

func (p *Project) NetworkDir() string {
	return p.Path(Folder, "network")
}

func (p *Project) loadEnv() (*Env, error) {
	b, err := os.ReadFile(p.Path(EnvConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", EnvConfig, err)
	}
	var env Env
	if err := toml.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", EnvConfig, err)
	}
	return &env, nil
}

// Env returns the dev environment, reading trampoline-env.toml if needed.
func (p *Project) Env() (*Env, error) {
	if p.Config.Env != nil {
		return p.Config.Env, nil
	}
	env, err := p.loadEnv()
	if err != nil {
		return nil, err
	}
	p.Config.Env = env
	return env, nil
}

// Binding resolves a local binding relative to the project root.
func (p *Project) Binding(v VirtualEnv) string {
	if filepath.IsAbs(v.LocalBinding) {
		return v.LocalBinding
	}
	return p.Path(v.LocalBinding)
}

// CkbConfigPath is the ckb.toml of the chain container's data directory.
func (p *Project) CkbConfigPath() (string, error) {
	env, err := p.Env()
	if err != nil {
		return "", err
	}
	return filepath.Join(p.Binding(env.Chain), "ckb.toml"), nil
}

// LoadCkbConfig must only be used while the node is stopped.
func (p *Project) LoadCkbConfig() (*ckbconfig.Config, error) {
	path, err := p.CkbConfigPath()
	if err != nil {
		return nil, err
	}
	return ckbconfig.Load(path)
}

func (p *Project) SaveCkbConfig(c *ckbconfig.Config) error {
	path, err := p.CkbConfigPath()
	if err != nil {
		return err
	}
	return c.Save(path)
}
