package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/simstudio/copilot-gateway/pkg/provider"
	"github.com/simstudio/copilot-gateway/pkg/provider/factory"
	"github.com/simstudio/copilot-gateway/pkg/secrets"
	"github.com/simstudio/copilot-gateway/pkg/storage"
)

// Resolver turns a (user, model) pair into a ready provider adapter and
// the effective model name.
type Resolver interface {
	Resolve(ctx context.Context, userID, model string) (provider.Provider, string, error)
}

// KeyAwareResolver resolves providers through the prefix factory,
// preferring a user's own stored API key over the configured one. Key
// lookup and decryption failures degrade to the configured key.
type KeyAwareResolver struct {
	Factory *factory.Factory
	Keys    storage.KeyStore // optional
	Cipher  *secrets.Cipher  // required when Keys is set
}

var _ Resolver = (*KeyAwareResolver)(nil)

// Resolve implements Resolver.
func (r *KeyAwareResolver) Resolve(ctx context.Context, userID, model string) (provider.Provider, string, error) {
	userKey := r.lookupUserKey(ctx, userID, model)
	return r.Factory.ForModel(model, userKey)
}

func (r *KeyAwareResolver) lookupUserKey(ctx context.Context, userID, model string) string {
	if r.Keys == nil || r.Cipher == nil || userID == "" {
		return ""
	}

	providerName := factory.ProviderNameForModel(model)
	if providerName == "" {
		return ""
	}

	stored, err := r.Keys.GetKey(ctx, userID, providerName)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Error("loading user api key", "user_id", userID, "provider", providerName, "error", err.Error())
		}
		return ""
	}

	key, err := r.Cipher.DecryptFromStorage(stored.EncryptedKey)
	if err != nil {
		slog.Error("decrypting user api key", "user_id", userID, "provider", providerName, "error", err.Error())
		return ""
	}

	slog.Info("using user api key", "provider", providerName)
	return key
}
