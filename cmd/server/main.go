// Command server runs the copilot gateway.
//
// Configuration is layered: built-in defaults, an optional YAML file
// (-config flag or COPILOT_CONFIG), then environment variables such as
// ANTHROPIC_API_KEY, OPENAI_API_KEY, DATABASE_URL, COPILOT_API_KEY,
// and COPILOT_ENCRYPTION_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/simstudio/copilot-gateway/pkg/auth"
	"github.com/simstudio/copilot-gateway/pkg/auth/apikey"
	"github.com/simstudio/copilot-gateway/pkg/auth/jwt"
	"github.com/simstudio/copilot-gateway/pkg/auth/noop"
	"github.com/simstudio/copilot-gateway/pkg/config"
	"github.com/simstudio/copilot-gateway/pkg/debug"
	"github.com/simstudio/copilot-gateway/pkg/engine"
	"github.com/simstudio/copilot-gateway/pkg/provider/factory"
	"github.com/simstudio/copilot-gateway/pkg/secrets"
	"github.com/simstudio/copilot-gateway/pkg/storage"
	"github.com/simstudio/copilot-gateway/pkg/storage/memory"
	"github.com/simstudio/copilot-gateway/pkg/storage/postgres"
	"github.com/simstudio/copilot-gateway/pkg/tools"
	transporthttp "github.com/simstudio/copilot-gateway/pkg/transport/http"
	"github.com/simstudio/copilot-gateway/pkg/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := debug.Init("", "")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cipher, err := openCipher(cfg)
	if err != nil {
		return err
	}

	providerFactory := factory.New(factory.Config{
		AnthropicAPIKey: cfg.Providers.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.Providers.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.Providers.OpenAIBaseURL,
		OllamaURL:       cfg.Providers.OllamaURL,
		DefaultProvider: cfg.Providers.DefaultProvider,
		DefaultModel:    cfg.Providers.DefaultModel,
		Timeout:         cfg.Providers.Timeout,
		MaxRetries:      cfg.Providers.MaxRetries,
	})

	resolver := &engine.KeyAwareResolver{
		Factory: providerFactory,
		Keys:    store,
		Cipher:  cipher,
	}

	var clientExec tools.ClientExecutor
	var loader engine.ContextLoader
	if cfg.HostApp.URL != "" {
		clientExec = tools.NewHostClient(cfg.HostApp.URL, cfg.HostApp.APIKey, 30*time.Second)
		loader = workflow.NewLoader(cfg.HostApp.URL, cfg.HostApp.APIKey, 10*time.Second)
		logger.Info("host application connected", "url", cfg.HostApp.URL)
	} else {
		logger.Info("no host application configured, client tools and workflow context disabled")
	}

	router := tools.NewRouter(clientExec)
	tools.RegisterBuiltins(router)

	eng, err := engine.New(resolver, router, store, loader, engine.Config{
		HistoryLimit:   cfg.Engine.HistoryLimit,
		PersistTimeout: cfg.Engine.PersistTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	limiter := auth.NewInProcessLimiter(map[string]auth.TierConfig{
		"user": {RequestsPerMinute: cfg.Auth.RateLimit.UserPerMinute},
		"ip":   {RequestsPerMinute: cfg.Auth.RateLimit.IPPerMinute},
	}, 0)

	srv := transporthttp.NewServer(eng, store, cipher, limiter,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
		transporthttp.WithAuthMiddleware(auth.Middleware(buildAuthChain(cfg), auth.DefaultBypassEndpoints)),
	)

	return srv.ListenAndServe()
}

// openStore selects the persistence backend. Postgres runs migrations
// on startup when configured to.
func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Type == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return store, nil
	}

	slog.Info("storage enabled", "type", "memory")
	return memory.New(), nil
}

// openCipher builds the key cipher when an encryption key is
// configured. Without one, per-user provider keys are disabled but the
// gateway still serves chats with the configured provider keys.
func openCipher(cfg *config.Config) (*secrets.Cipher, error) {
	if cfg.Secrets.EncryptionKey == "" {
		slog.Warn("no encryption key configured, per-user provider keys disabled")
		return nil, nil
	}
	cipher, err := secrets.New(cfg.Secrets.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	return cipher, nil
}

// buildAuthChain assembles the gateway's authenticators. With no
// gateway key and no JWT issuer the chain falls back to the no-op
// authenticator and the gateway is open.
func buildAuthChain(cfg *config.Config) *auth.AuthChain {
	var authenticators []auth.Authenticator

	if cfg.Auth.GatewayKey != "" {
		authenticators = append(authenticators, apikey.New([]apikey.RawKeyEntry{{
			Key:      cfg.Auth.GatewayKey,
			Identity: auth.Identity{Subject: "gateway", Tier: "user"},
		}}))
	}

	if cfg.Auth.JWT.JWKSURL != "" {
		authenticators = append(authenticators, jwt.New(jwt.Config{
			Issuer:   cfg.Auth.JWT.Issuer,
			Audience: cfg.Auth.JWT.Audience,
			JWKSURL:  cfg.Auth.JWT.JWKSURL,
		}))
	}

	if len(authenticators) == 0 {
		slog.Warn("no gateway key or JWT issuer configured, gateway is open")
		authenticators = append(authenticators, &noop.Authenticator{})
	}

	return &auth.AuthChain{
		Authenticators:  authenticators,
		DefaultDecision: auth.No,
	}
}
