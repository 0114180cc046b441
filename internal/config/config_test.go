package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearForgeEnv(t *testing.T) {
	for _, key := range []string{
		"SKILLFORGE_ENABLED", "SKILLFORGE_AUTO_INTEGRATE", "SKILLFORGE_MIN_SCORE",
		"SKILLFORGE_SOURCES", "SKILLFORGE_OUTPUT_DIR", "SKILLFORGE_SCAN_INTERVAL_HOURS",
		"GITHUB_TOKEN", "SKILLFORGE_GITHUB_TOKEN", "SKILLFORGE_TELEGRAM_BOT_TOKEN",
		"SKILLFORGE_TELEGRAM_ALLOWED_USERS", "SKILLFORGE_LOG_LEVEL", "SKILLFORGE_LOG_FILE",
		"SKILLFORGE_DB_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultForgeConfig(t *testing.T) {
	cfg := DefaultForgeConfig()
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.AutoIntegrate)
	assert.Equal(t, 24, cfg.ScanIntervalHours)
	assert.InDelta(t, 0.7, cfg.MinScore, 1e-9)
	assert.Equal(t, []string{"github", "clawhub"}, cfg.Sources)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromDefaults(t *testing.T) {
	clearForgeEnv(t)
	root := t.TempDir()

	cfg, err := LoadConfigFrom(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "skills"), cfg.Forge.OutputDir)
	assert.Equal(t, filepath.Join(root, ".skillforge", "store", "runs.sqlite3"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.DirExists(t, filepath.Join(root, ".skillforge", "logs"))
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	clearForgeEnv(t)
	root := t.TempDir()
	forgeDir := GetForgeDir(root)
	require.NoError(t, EnsureForgeDirs(forgeDir))

	content := `
[skillforge]
enabled = true
auto_integrate = false
min_score = 0.55
sources = ["github"]
output_dir = "/tmp/skills-out"
denied_licenses = ["AGPL-3.0"]

[skillforge.github]
token = "file-token"
base_url = "http://localhost:9999/"
queries = ["mcp skill"]
per_page = 10

[notify.telegram]
bot_token = "bot"
allowed_users = ["42"]

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(filepath.Join(forgeDir, "config.toml"), []byte(content), 0644))

	cfg, err := LoadConfigFrom(root)
	require.NoError(t, err)

	assert.True(t, cfg.Forge.Enabled)
	assert.False(t, cfg.Forge.AutoIntegrate)
	assert.InDelta(t, 0.55, cfg.Forge.MinScore, 1e-9)
	assert.Equal(t, []string{"github"}, cfg.Forge.Sources)
	assert.Equal(t, "/tmp/skills-out", cfg.Forge.OutputDir)
	assert.Equal(t, []string{"AGPL-3.0"}, cfg.Forge.DeniedLicenses)
	assert.Equal(t, "file-token", cfg.Forge.GitHub.Token)
	assert.Equal(t, "http://localhost:9999", cfg.Forge.GitHub.BaseURL)
	assert.Equal(t, []string{"mcp skill"}, cfg.Forge.GitHub.Queries)
	assert.Equal(t, 10, cfg.Forge.GitHub.PerPage)
	assert.Equal(t, "bot", cfg.Telegram.BotToken)
	assert.Equal(t, []string{"42"}, cfg.Telegram.AllowedUsers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvOverrides(t *testing.T) {
	clearForgeEnv(t)
	t.Setenv("SKILLFORGE_ENABLED", "1")
	t.Setenv("SKILLFORGE_MIN_SCORE", "0.9")
	t.Setenv("SKILLFORGE_SOURCES", "github, huggingface")
	t.Setenv("GITHUB_TOKEN", "plain")
	t.Setenv("SKILLFORGE_GITHUB_TOKEN", "prefixed")

	cfg, err := LoadConfigFrom(t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.Forge.Enabled)
	assert.InDelta(t, 0.9, cfg.Forge.MinScore, 1e-9)
	assert.Equal(t, []string{"github", "huggingface"}, cfg.Forge.Sources)
	assert.Equal(t, "prefixed", cfg.Forge.GitHub.Token)
}

func TestMalformedNumericEnvIsConfigurationError(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SKILLFORGE_MIN_SCORE", "high"},
		{"SKILLFORGE_MIN_SCORE", "NaN"},
		{"SKILLFORGE_SCAN_INTERVAL_HOURS", "daily"},
		{"SKILLFORGE_SCAN_INTERVAL_HOURS", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearForgeEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadConfigFrom(t.TempDir())
			assert.Nil(t, cfg)

			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.key, cerr.Field)
			assert.Contains(t, cerr.Error(), tt.value)
		})
	}
}

func TestForgeConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ForgeConfig)
		field  string
	}{
		{"min score above one", func(c *ForgeConfig) { c.MinScore = 1.5 }, "MinScore"},
		{"negative min score", func(c *ForgeConfig) { c.MinScore = -0.1 }, "MinScore"},
		{"empty output dir", func(c *ForgeConfig) { c.OutputDir = "" }, "OutputDir"},
		{"zero workers", func(c *ForgeConfig) { c.IntegrateWorkers = 0 }, "IntegrateWorkers"},
		{"blank source", func(c *ForgeConfig) { c.Sources = []string{"github", ""} }, "Sources"},
		{"bad github url", func(c *ForgeConfig) { c.GitHub.BaseURL = "not a url" }, "BaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultForgeConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Field, tt.field)
		})
	}
}

func TestMinScoreBoundariesAreValid(t *testing.T) {
	for _, score := range []float64{0, 1} {
		cfg := DefaultForgeConfig()
		cfg.MinScore = score
		assert.NoError(t, cfg.Validate())
	}
}
