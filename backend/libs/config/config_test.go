package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	HTTP struct {
		Port string `yaml:"port" env:"SAMPLE_HTTP_PORT"`
	} `yaml:"http"`
	Billing struct {
		HourlyRate    string        `yaml:"hourlyRate"`
		TotalMachines int           `yaml:"totalMachines"`
		Timeout       time.Duration `yaml:"timeout"`
	} `yaml:"billing"`
	Skipped string `env:"-"`
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	require.Error(t, LoadConfig(nil))
	require.Error(t, LoadConfig(sampleConfig{}))
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := []byte("http:\n  port: \"9000\"\nbilling:\n  hourlyRate: \"100.00\"\n  totalMachines: 20\n")
	require.NoError(t, os.WriteFile(path, yamlBody, 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(dotEnvPathEnv, "")
	t.Setenv("BILLING_TOTALMACHINES", "30")
	t.Setenv("BILLING_TIMEOUT", "7s")
	t.Setenv("SKIPPED", "nope")

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "9000", cfg.HTTP.Port)
	assert.Equal(t, "100.00", cfg.Billing.HourlyRate)
	assert.Equal(t, 30, cfg.Billing.TotalMachines)
	assert.Equal(t, 7*time.Second, cfg.Billing.Timeout)
	assert.Empty(t, cfg.Skipped)
}

func TestLoadConfigExplicitTagWins(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(dotEnvPathEnv, "")
	t.Setenv("SAMPLE_HTTP_PORT", "8181")
	t.Setenv("HTTP_PORT", "1111")

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))
	assert.Equal(t, "8181", cfg.HTTP.Port)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.env")
	require.NoError(t, os.WriteFile(path, []byte("BILLING_HOURLYRATE=80.50\n"), 0o600))

	t.Setenv(configPathEnv, "")
	t.Setenv(dotEnvPathEnv, path)
	t.Cleanup(func() { os.Unsetenv("BILLING_HOURLYRATE") })

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))
	assert.Equal(t, "80.50", cfg.Billing.HourlyRate)
}

func TestLoadConfigMissingExplicitDotEnv(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(dotEnvPathEnv, filepath.Join(t.TempDir(), "absent.env"))

	var cfg sampleConfig
	require.Error(t, LoadConfig(&cfg))
}

func TestLoadConfigBadValue(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(dotEnvPathEnv, "")
	t.Setenv("BILLING_TOTALMACHINES", "many")

	var cfg sampleConfig
	require.Error(t, LoadConfig(&cfg))
}
