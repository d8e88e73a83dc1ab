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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "dev"
log_level = "debug"

[engine]
grace_period = "48h"
creator_seed = 25

[server]
port = 9001
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 48*time.Hour, cfg.Engine.GracePeriod.Duration)
	assert.Equal(t, int64(25), cfg.Engine.CreatorSeed)
	assert.Equal(t, 9001, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, time.Minute, cfg.Engine.MinDuration.Duration)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
mode = "dev"

[engine]
grace_period = "48h"
`)

	t.Setenv("CONVICTIOND_ENGINE_GRACE_PERIOD", "72h")
	t.Setenv("CONVICTIOND_DATABASE_PASSWORD", "from-env")
	t.Setenv("CONVICTIOND_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 72*time.Hour, cfg.Engine.GracePeriod.Duration)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	cfg.Enclave.URL = "http://localhost:7700"
	assert.NoError(t, cfg.Validate())
}

func TestValidateDevSkipsBackendChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "dev"
	cfg.Database.Host = ""
	cfg.Redis.Addr = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nonsense"
	cfg.Engine.GracePeriod.Duration = 0
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
	assert.Contains(t, err.Error(), "grace_period")
	assert.Contains(t, err.Error(), "port")
}

func TestValidateTreasuryKeyRequiredWithRelayer(t *testing.T) {
	cfg := Defaults()
	cfg.Enclave.URL = "http://localhost:7700"
	cfg.Treasury.RelayerURL = "http://localhost:8500"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treasury")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Treasury.PrivateKey = "0xdeadbeef"
	cfg.Server.ApiKey = "sekrit"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Treasury.PrivateKey)
	assert.Equal(t, "***", red.Server.ApiKey)

	// Original untouched.
	assert.Equal(t, "hunter2", cfg.Database.Password)
}
