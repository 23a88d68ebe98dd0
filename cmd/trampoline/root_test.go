package trampoline_test

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/cmd/trampoline"
	"github.com/manifest-network/trampoline/internal/testutil"
)

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	testutil.ResetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	_, err = root.ExecuteC()
	return buf.String(), err
}

func TestRootCmd(t *testing.T) {
	// Show help
	output, err := executeCommand(trampoline.RootCmd)
	assert.NoError(t, err)
	assert.Contains(t, output, "trampoline scaffolds CKB projects and runs their local development network.")

	// Test invalid logLevel
	_, err = executeCommand(trampoline.RootCmd, "version", "--logLevel", "invalid")
	assert.Error(t, err)
	assert.ErrorContains(t, err, "invalid log level: invalid. Valid log levels are: debug|error|info|warn")
}

func TestVersionCmd(t *testing.T) {
	output, err := executeCommand(trampoline.RootCmd, "version")
	assert.NoError(t, err)
	assert.Contains(t, output, "trampoline dev")
}

func TestCommandAliases(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"n"}, "new"},
		{[]string{"s", "build"}, "build"},
		{[]string{"net", "i"}, "init"},
		{[]string{"net", "l"}, "launch"},
		{[]string{"net", "s"}, "stop"},
		{[]string{"net", "r"}, "reset"},
		{[]string{"net", "c"}, "config"},
	}
	for _, tt := range tests {
		c, _, err := trampoline.RootCmd.Find(tt.args)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, c.Name(), tt.args)
	}
}
