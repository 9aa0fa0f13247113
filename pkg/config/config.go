// Package config provides unified configuration for the copilot gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the copilot gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Secrets       SecretsConfig       `yaml:"secrets"`
	HostApp       HostAppConfig       `yaml:"host_app"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// ProvidersConfig holds upstream model provider credentials and
// endpoints. Per-user stored keys take precedence at request time.
type ProvidersConfig struct {
	AnthropicAPIKey     string `yaml:"anthropic_api_key"`
	AnthropicAPIKeyFile string `yaml:"anthropic_api_key_file"`
	OpenAIAPIKey        string `yaml:"openai_api_key"`
	OpenAIAPIKeyFile    string `yaml:"openai_api_key_file"`
	OpenAIBaseURL       string `yaml:"openai_base_url"`
	OllamaURL           string `yaml:"ollama_url"` // default: http://localhost:11434

	DefaultProvider string `yaml:"default_provider"` // default: "anthropic"
	DefaultModel    string `yaml:"default_model"`

	Timeout    time.Duration `yaml:"timeout"`     // per-request upstream timeout
	MaxRetries int           `yaml:"max_retries"` // connect retries, default: 2
}

// EngineConfig holds stream orchestration settings.
type EngineConfig struct {
	HistoryLimit   int           `yaml:"history_limit"`   // messages of context, default: 20
	PersistTimeout time.Duration `yaml:"persist_timeout"` // default: 10s
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds gateway authentication and rate limit settings.
type AuthConfig struct {
	// GatewayKey guards the API routes via the X-API-Key header.
	// Empty leaves the gateway open.
	GatewayKey     string `yaml:"gateway_key"`
	GatewayKeyFile string `yaml:"gateway_key_file"`

	JWT JWTConfig `yaml:"jwt"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig enables the bearer-token authenticator when JWKSURL is set.
type JWTConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	JWKSURL  string `yaml:"jwks_url"`
}

// RateLimitConfig holds the chat route's sliding-window limits.
type RateLimitConfig struct {
	UserPerMinute int `yaml:"user_per_minute"` // default: 100
	IPPerMinute   int `yaml:"ip_per_minute"`   // default: 200
}

// SecretsConfig holds the key used to encrypt stored provider keys.
type SecretsConfig struct {
	EncryptionKey     string `yaml:"encryption_key"`
	EncryptionKeyFile string `yaml:"encryption_key_file"`
}

// HostAppConfig points at the application the gateway serves: workflow
// context fetches and client-tool delegation go there.
type HostAppConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Providers: ProvidersConfig{
			OllamaURL:       "http://localhost:11434",
			DefaultProvider: "anthropic",
			MaxRetries:      2,
		},
		Engine: EngineConfig{
			HistoryLimit:   20,
			PersistTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			RateLimit: RateLimitConfig{
				UserPerMinute: 100,
				IPPerMinute:   200,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
