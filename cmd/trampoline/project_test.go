package trampoline_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/cmd/trampoline"
	"github.com/manifest-network/trampoline/internal/project"
	"github.com/manifest-network/trampoline/internal/testutil"
)

const (
	testSecretKey = "009c0df368efef6084ba35ded33f05ef2a5f4b25d7841bce77e2449be9311dba"
	testLockArg   = "277940df3084136576140e7fa07c3961f0c4cca3"
)

// newProject scaffolds a project named demo and returns its root.
func newProject(t *testing.T) string {
	t.Helper()
	parent := t.TempDir()
	out, err := testutil.Execute(t, trampoline.RootCmd, "new", "demo", "--project", parent)
	require.NoError(t, err)
	root := filepath.Join(parent, "demo")
	require.Contains(t, out, "Project demo created at "+root)
	return root
}

func TestNewCmd(t *testing.T) {
	root := newProject(t)
	assert.FileExists(t, filepath.Join(root, project.RootConfig))
	assert.FileExists(t, filepath.Join(root, project.EnvConfig))

	// Nested projects are refused
	_, err := testutil.Execute(t, trampoline.RootCmd, "new", "inner", "--project", root)
	var exists *project.AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "demo", exists.Name)

	_, err = testutil.Execute(t, trampoline.RootCmd, "new", "demo", "--project", filepath.Dir(root))
	assert.ErrorAs(t, err, &exists)
}

func TestAccountCmd(t *testing.T) {
	root := newProject(t)

	out, err := testutil.Execute(t, trampoline.RootCmd, "account", "import", testSecretKey, "--project", root)
	require.NoError(t, err)
	assert.Contains(t, out, `"lock_arg": "`+testLockArg+`"`)
	assert.Contains(t, out, `"address": "ckt1`)

	_, err = testutil.Execute(t, trampoline.RootCmd, "account", "new", "--project", root)
	require.NoError(t, err)

	out, err = testutil.Execute(t, trampoline.RootCmd, "account", "list", "--project", root)
	require.NoError(t, err)
	assert.Contains(t, out, testLockArg)
	entries, err := os.ReadDir(filepath.Join(root, project.Folder, "accounts"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Export needs a password
	_, err = testutil.Execute(t, trampoline.RootCmd, "account", "export", testLockArg, "--project", root)
	assert.ErrorContains(t, err, "--password is required")

	ks := filepath.Join(t.TempDir(), "key.json")
	_, err = testutil.Execute(t, trampoline.RootCmd, "account", "export", testLockArg, "--project", root, "--password", "hunter2", "--keystore", ks)
	require.NoError(t, err)
	b, err := os.ReadFile(ks)
	require.NoError(t, err)
	var exported map[string]any
	require.NoError(t, json.Unmarshal(b, &exported))

	// Import the keystore into a fresh project
	other := newProject(t)
	out, err = testutil.Execute(t, trampoline.RootCmd, "account", "import", "--project", other, "--password", "hunter2", "--keystore", ks)
	require.NoError(t, err)
	assert.Contains(t, out, testLockArg)

	_, err = testutil.Execute(t, trampoline.RootCmd, "account", "import", "--project", other, "--keystore", ks)
	assert.ErrorContains(t, err, "invalid Account configuration")

	_, err = testutil.Execute(t, trampoline.RootCmd, "account", "import", "--project", other)
	assert.ErrorContains(t, err, "a secret key or --keystore is required")
}

func TestSchemaCmd(t *testing.T) {
	root := newProject(t)

	out, err := testutil.Execute(t, trampoline.RootCmd, "schema", "new", "point", "array", "Uint32", "[byte;", "4];", "struct", "Point", "{", "x:", "Uint32,", "y:", "Uint32,", "}", "--project", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema point at")
	assert.FileExists(t, filepath.Join(root, project.SchemasDir, "mol", "point.mol"))
	assert.FileExists(t, filepath.Join(root, project.SchemasDir, "src", "point.go"))

	out, err = testutil.Execute(t, trampoline.RootCmd, "schema", "build", "point", "--project", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Bindings written to")

	_, err = testutil.Execute(t, trampoline.RootCmd, "schema", "build", "missing", "--project", root)
	assert.Error(t, err)
}

func TestCheckCmd(t *testing.T) {
	root := newProject(t)
	api := testutil.NewFakeDocker()
	defer trampoline.SetDockerAPI(api)()

	out, err := testutil.Execute(t, trampoline.RootCmd, "check", "--project", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Project demo found at "+root)
	assert.Contains(t, out, "Docker engine reachable, API version 1.43")

	_, err = testutil.Execute(t, trampoline.RootCmd, "check", "--project", t.TempDir())
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}
