// Package schema manages the molecule schemas of a project and generates Go
// bindings for them.
package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/manifest-network/trampoline/internal/project"
)

const Package = "schemas"

func molPath(p *project.Project, name string) string {
	return p.Path(project.SchemasDir, "mol", name+".mol")
}

func bindingsPath(p *project.Project, name string) string {
	return p.Path(project.SchemasDir, "src", name+".go")
}

// New writes schemas/mol/<name>.mol with def. An existing schema file is
// kept and its bindings are regenerated; a new one is built when def is not
// empty.
func New(p *project.Project, name, def string) (string, error) {
	path := molPath(p, name)
	build := def != ""
	if _, err := os.Stat(path); err == nil {
		slog.Info("Schema file exists", "path", path)
		build = true
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create schema directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(def), 0o644); err != nil {
			return "", fmt.Errorf("failed to write schema %s: %w", name, err)
		}
		slog.Info("Schema created", "path", path)
	} else {
		return "", err
	}
	if !build {
		return path, nil
	}
	if _, err := Build(p, name); err != nil {
		return "", err
	}
	return path, nil
}

// Build compiles schemas/mol/<name>.mol into schemas/src/<name>.go.
func Build(p *project.Project, name string) (string, error) {
	src, err := os.ReadFile(molPath(p, name))
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	s, err := Parse(string(src))
	if err != nil {
		return "", fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	code, err := Generate(s, Package)
	if err != nil {
		return "", err
	}
	out := bindingsPath(p, name)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("failed to create bindings directory: %w", err)
	}
	if err := os.WriteFile(out, code, 0o644); err != nil {
		return "", fmt.Errorf("failed to write bindings for %s: %w", name, err)
	}
	slog.Info("Bindings generated", "schema", name, "path", out)
	return out, nil
}
