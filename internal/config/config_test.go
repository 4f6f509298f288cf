package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv blanks every override so ambient variables cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SKILLRADAR_DB_PATH", "SKILLRADAR_RETENTION_DAYS", "SKILLRADAR_SCHEDULE",
		"SLACK_WEBHOOK_URL", "DISCORD_WEBHOOK_URL", "SKILLRADAR_WEBHOOK_URL",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30*time.Second, cfg.Leaderboard.ParseTimeout())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/skillradar/skills.db
  retention_days: 14
trend:
  surging_limit: 8
leaderboard:
  timeout: 5s
`)
	clearEnv(t)
	t.Setenv("SKILLRADAR_RETENTION_DAYS", "21")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/skillradar/skills.db", cfg.Database.Path)
	assert.Equal(t, 21, cfg.Database.RetentionDays)
	assert.Equal(t, 8, cfg.Trend.SurgingLimit)
	assert.Equal(t, 20, cfg.Trend.TopN)
	assert.Equal(t, 5*time.Second, cfg.Leaderboard.ParseTimeout())
	assert.True(t, cfg.Summarizer.Enabled)
	assert.Equal(t, "anthropic", cfg.Summarizer.Provider)
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"negative retention": "database:\n  retention_days: -1\n",
		"zero movers":        "trend:\n  movers_limit: 0\n",
		"unknown provider":   "summarizer:\n  provider: local\n",
		"malformed":          "database: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	t.Run("bad env", func(t *testing.T) {
		t.Setenv("SKILLRADAR_RETENTION_DAYS", "forever")
		_, err := Load("")
		assert.ErrorContains(t, err, "SKILLRADAR_RETENTION_DAYS")
	})

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
