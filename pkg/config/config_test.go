package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", ""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodySize)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "anthropic", cfg.Providers.DefaultProvider)
	assert.Equal(t, "http://localhost:11434", cfg.Providers.OllamaURL)
	assert.Equal(t, 20, cfg.Engine.HistoryLimit)
	assert.Equal(t, 100, cfg.Auth.RateLimit.UserPerMinute)
	assert.Equal(t, 200, cfg.Auth.RateLimit.IPPerMinute)
	assert.True(t, cfg.Observability.Metrics.Enabled)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
providers:
  default_provider: openai
  openai_api_key: sk-from-yaml
engine:
  history_limit: 50
auth:
  rate_limit:
    user_per_minute: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.Providers.DefaultProvider)
	assert.Equal(t, "sk-from-yaml", cfg.Providers.OpenAIAPIKey)
	assert.Equal(t, 50, cfg.Engine.HistoryLimit)
	assert.Equal(t, 10, cfg.Auth.RateLimit.UserPerMinute)
	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")
	t.Setenv("COPILOT_PORT", "7070")
	t.Setenv("COPILOT_API_KEY", "gateway-secret")

	path := writeFile(t, "config.yaml", `
server:
  port: 9090
providers:
  anthropic_api_key: sk-from-yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.Providers.AnthropicAPIKey)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "gateway-secret", cfg.Auth.GatewayKey)
}

func TestLoad_DatabaseURLSelectsPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://gateway:pw@localhost/copilot")

	cfg, err := Load(writeFile(t, "config.yaml", ""))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://gateway:pw@localhost/copilot", cfg.Storage.Postgres.DSN)
}

func TestLoad_FileReferences(t *testing.T) {
	keyFile := writeFile(t, "anthropic.key", "sk-from-file\n")
	path := writeFile(t, "config.yaml", `
providers:
  anthropic_api_key_file: `+keyFile+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-file", cfg.Providers.AnthropicAPIKey, "file content is trimmed")
}

func TestLoad_FileReferenceDoesNotOverrideValue(t *testing.T) {
	keyFile := writeFile(t, "anthropic.key", "sk-from-file")
	path := writeFile(t, "config.yaml", `
providers:
  anthropic_api_key: sk-direct
  anthropic_api_key_file: `+keyFile+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-direct", cfg.Providers.AnthropicAPIKey)
}

func TestLoad_MissingSecretFileFails(t *testing.T) {
	path := writeFile(t, "config.yaml", `
auth:
  gateway_key_file: /nonexistent/key
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway_key_file")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad storage type", func(c *Config) { c.Storage.Type = "redis" }, "storage.type"},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = "postgres" }, "storage.postgres.dsn"},
		{"bad default provider", func(c *Config) { c.Providers.DefaultProvider = "cohere" }, "default_provider"},
		{"short encryption key", func(c *Config) { c.Secrets.EncryptionKey = "tooshort" }, "encryption_key"},
		{"negative user limit", func(c *Config) { c.Auth.RateLimit.UserPerMinute = -1 }, "user_per_minute"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		cfg := Defaults()
		assert.NoError(t, cfg.Validate())
	})
}
