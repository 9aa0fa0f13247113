package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Providers.DefaultProvider {
	case "anthropic", "openai", "ollama", "":
	default:
		errs = append(errs, fmt.Errorf("providers.default_provider must be \"anthropic\", \"openai\", or \"ollama\", got %q", c.Providers.DefaultProvider))
	}

	// Stored keys are unreadable without the cipher, so key storage
	// requires a sufficiently long encryption key.
	if c.Secrets.EncryptionKey != "" && len(c.Secrets.EncryptionKey) < 32 {
		errs = append(errs, fmt.Errorf("secrets.encryption_key must be at least 32 characters, got %d", len(c.Secrets.EncryptionKey)))
	}

	if c.Auth.RateLimit.UserPerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.user_per_minute must be >= 0, got %d", c.Auth.RateLimit.UserPerMinute))
	}
	if c.Auth.RateLimit.IPPerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.ip_per_minute must be >= 0, got %d", c.Auth.RateLimit.IPPerMinute))
	}

	return errors.Join(errs...)
}
