package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/internal/workspace"
	"github.com/aretw0/arbor/pkg/graph"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	if os.Getenv("ARBOR_STATE_BACKEND") == "" {
		t.Setenv("ARBOR_STATE_BACKEND", "memory")
	}

	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores flag defaults; cobra keeps parsed values between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Regexp(t, `^arbor version \S+\n$`, out)
}

func TestTreeCommand_JSON(t *testing.T) {
	out, err := run(t, "tree", "--format", "json", "--depth", "2")
	require.NoError(t, err)

	var tree graph.TreeNode
	require.NoError(t, json.Unmarshal([]byte(out), &tree))
	require.Len(t, tree.Nodes, 2)
	assert.Equal(t, "personal", tree.Nodes[0].ID)
	assert.Len(t, tree.Nodes[0].Nodes, 2)
}

func TestTreeCommand_UnknownFormat(t *testing.T) {
	_, err := run(t, "tree", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestMermaidCommand(t *testing.T) {
	out, err := run(t, "mermaid", "--depth", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "Personal")
}

func TestStateLs_Empty(t *testing.T) {
	out, err := run(t, "state", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored state found.")
}

func TestMoveCommand_DryRun(t *testing.T) {
	out, err := run(t, "move", "root~personal~projects", "root~personal~inbox", "--type", "reorder-above", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "rearrange into personal at 0\n", out)
}

func TestMoveCommand_Write(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
spaces:
  - id: home
    collections:
      - id: inbox
        objects: [{id: milk, name: Milk}]
      - id: later
`), 0o644))

	_, err := run(t, "--workspace", path, "move", "root~home~inbox~milk", "root~home~later", "--write")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	f, err := workspace.Parse(data)
	require.NoError(t, err)
	assert.Empty(t, f.Spaces[0].Collections[0].Objects)
	require.Len(t, f.Spaces[0].Collections[1].Objects, 1)
	assert.Equal(t, "milk", f.Spaces[0].Collections[1].Objects[0].ID)
}

func TestMoveCommand_Rejected(t *testing.T) {
	_, err := run(t, "move", "root~personal", "root~team", "--type", "make-child", "--dry-run")
	assert.ErrorContains(t, err, "rejected")
}

func TestStateCommands_EncryptedFileBackend(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARBOR_STATE_BACKEND", "file")
	t.Setenv("ARBOR_STATE_FILE_DIR", dir)
	t.Setenv("ARBOR_STATE_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32)))

	out, err := run(t, "state", "toggle", "root~personal")
	require.NoError(t, err)
	assert.Equal(t, "root~personal open=true\n", out)

	out, err = run(t, "state", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "- navtree-state")

	out, err = run(t, "state", "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, `"root~personal"`)
	assert.Contains(t, out, `"open": true`)

	raw, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	data, err := os.ReadFile(filepath.Join(dir, raw[0].Name()))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "personal", "the snapshot is encrypted at rest")

	out, err = run(t, "state", "rm", "navtree-state")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed state 'navtree-state'")
}
