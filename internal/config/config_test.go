package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "config.yaml"), []byte(body), 0o600))
	return root
}

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "5050", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Store.TTL)
	assert.Equal(t, time.Minute, cfg.Store.SweepInterval)
	assert.Equal(t, []int{3, 4, 5, 6, 7}, cfg.Test.TrialSizes)
	assert.Equal(t, 30*time.Second, cfg.Test.MemorizeLimit)
	assert.Equal(t, filepath.Join("exports", "memtest-results.xlsx"), cfg.ExportPath())

	st := cfg.Settings()
	assert.Equal(t, cfg.Test.TrialSizes, st.TrialSizes)
	assert.Equal(t, 30*time.Second, st.MemorizeLimit)
}

func TestLoadFileAndEnv(t *testing.T) {
	root := writeConfig(t, `
server:
  port: "8080"
database:
  driver: postgres
test:
  trial_sizes: [2, 3]
  memorize_limit: 20s
store:
  ttl: 30m
`)
	t.Setenv("MEMTEST_SERVER_PORT", "9090")
	t.Setenv("MEMTEST_LOGGING_LEVEL", "debug")

	cfg, v, err := Load(root)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ConfigFileUsed())
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []int{2, 3}, cfg.Test.TrialSizes)
	assert.Equal(t, 20*time.Second, cfg.Test.MemorizeLimit)
	assert.Equal(t, 30*time.Minute, cfg.Store.TTL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"size too large": "test:\n  trial_sizes: [3, 17]\n",
		"zero limit":     "test:\n  memorize_limit: 0s\n",
		"unknown driver": "database:\n  driver: mysql\n",
		"unknown store":  "store:\n  backend: etcd\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestInitSetsGlobal(t *testing.T) {
	cfg, err := Init(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, cfg, Current())
}
