package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, COPILOT_CONFIG env, ./config.yaml, /etc/copilot-gateway/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. COPILOT_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/copilot-gateway/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("COPILOT_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/copilot-gateway/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. The
// provider and database names match what the host application already
// exports; gateway-specific settings use the COPILOT_ prefix.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Providers.OpenAIBaseURL = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Providers.OllamaURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.Type = "postgres"
		cfg.Storage.Postgres.DSN = v
	}

	if v := os.Getenv("COPILOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("COPILOT_DEFAULT_MODEL"); v != "" {
		cfg.Providers.DefaultModel = v
	}
	if v := os.Getenv("COPILOT_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("COPILOT_API_KEY"); v != "" {
		cfg.Auth.GatewayKey = v
	}
	if v := os.Getenv("COPILOT_ENCRYPTION_KEY"); v != "" {
		cfg.Secrets.EncryptionKey = v
	}
	if v := os.Getenv("COPILOT_HOST_APP_URL"); v != "" {
		cfg.HostApp.URL = v
	}
	if v := os.Getenv("COPILOT_HOST_APP_KEY"); v != "" {
		cfg.HostApp.APIKey = v
	}
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. For each field ending in _file, if the value field is empty
// and the file field is set, the file is read, whitespace is trimmed, and
// the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name string
		file string
		dst  *string
	}{
		{"providers.anthropic_api_key_file", cfg.Providers.AnthropicAPIKeyFile, &cfg.Providers.AnthropicAPIKey},
		{"providers.openai_api_key_file", cfg.Providers.OpenAIAPIKeyFile, &cfg.Providers.OpenAIAPIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.gateway_key_file", cfg.Auth.GatewayKeyFile, &cfg.Auth.GatewayKey},
		{"secrets.encryption_key_file", cfg.Secrets.EncryptionKeyFile, &cfg.Secrets.EncryptionKey},
		{"host_app.api_key_file", cfg.HostApp.APIKeyFile, &cfg.HostApp.APIKey},
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.dst = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
