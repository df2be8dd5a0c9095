package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: local
database:
  host: localhost
  port: 5432
  user: fraud_agent
  database: fraud_agent
`

func writeConfigFile(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fraud-agent.yaml"), []byte(contents), 0o600))
}

func TestInitialize_MissingFileReturnsErrConfigNotFound(t *testing.T) {
	dir := t.TempDir()

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitialize_MergesOverlayOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, minimalYAML)

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Environment)
	assert.Equal(t, "localhost", cfg.Database.Host)
	// Values not present in the overlay must retain their defaults.
	assert.Equal(t, "claude-sonnet-4-5", cfg.Planner.Model)
	assert.Equal(t, 20, cfg.Timeouts.MaxSteps)
}

func TestInitialize_ResolvesSecretsFromEnv(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, minimalYAML+"\nllm:\n  api_key_env: TEST_LLM_API_KEY\n")
	t.Setenv("TEST_LLM_API_KEY", "sk-test-123")

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
}

func TestInitialize_ProductionRejectsSkipJWTValidation(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
environment: production
database:
  host: localhost
  port: 5432
  user: fraud_agent
  database: fraud_agent
safety:
  skip_jwt_validation: true
`)

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skip_jwt_validation")
}

func TestInitialize_ProductionRequiresLLMAPIKeyWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
environment: production
database:
  host: localhost
  port: 5432
  user: fraud_agent
  database: fraud_agent
planner:
  llm_enabled: true
`)

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_enabled")
}

func TestValidateConfig_RejectsNonPositiveMaxSteps(t *testing.T) {
	cfg := defaultConfig()
	cfg.Timeouts.MaxSteps = 0

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_steps")
}

func TestValidateConfig_RejectsToolTimeoutExceedingInvestigationTimeout(t *testing.T) {
	cfg := defaultConfig()
	cfg.Timeouts.ToolTimeout = cfg.Timeouts.InvestigationTimeout

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "investigation_timeout_seconds")
}

func TestValidateConfig_RejectsEmptyFallbackSequence(t *testing.T) {
	cfg := defaultConfig()
	cfg.Planner.FallbackSequence = nil

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback_sequence")
}
