package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "demo", cfg.DemoWidgetID)
	assert.Equal(t, 5, cfg.TurnBurst)
	assert.Zero(t, cfg.LLMTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := Config{LLMProvider: "openai", TurnRate: 1, TurnBurst: 1, DemoWidgetID: "demo", DefaultTemperature: 0.7, MaxHistory: 10}
	require.NoError(t, base.Validate())

	bad := base
	bad.LLMProvider = "gemini"
	assert.Error(t, bad.Validate())

	bad = base
	bad.TurnBurst = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.DefaultTemperature = 3
	assert.Error(t, bad.Validate())

	bad = base
	bad.DemoWidgetID = ""
	assert.Error(t, bad.Validate())
}

func TestLoadEnvFilesSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEADWIDGET_TEST_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LEADWIDGET_TEST_KEY") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("LEADWIDGET_TEST_KEY"))
}
