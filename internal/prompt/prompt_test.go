package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	p := Defaults()
	require.NotEmpty(t, p.Planner)
	require.NotEmpty(t, p.Editor)
}

func TestLoadEmptyPathKeepsDefaults(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults(), p)
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner: |\n  Custom planner.\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Custom planner.\n", p.Planner)
	// Unset fields keep their defaults.
	require.Equal(t, Defaults().Editor, p.Editor)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
