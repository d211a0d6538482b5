package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 8765, cfg.Port)
	require.True(t, cfg.AutoApply)
	require.True(t, cfg.Planner)
	require.Equal(t, "ollama", cfg.Embedding.Provider)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9000, "auto_apply": false}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.False(t, cfg.AutoApply)
	// Untouched fields keep defaults.
	require.Equal(t, "127.0.0.1", cfg.Host)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9000}`), 0o644))

	t.Setenv("NBCOPILOT_PORT", "9100")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("NBCOPILOT_DEBUG", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Port)
	require.Equal(t, "env-key", cfg.LLM.APIKey)
	require.True(t, cfg.Debug)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
