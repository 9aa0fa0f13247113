package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/simstudio/copilot-gateway/pkg/auth"
)

var testKeyPair *rsa.PrivateKey

func init() {
	var err error
	testKeyPair, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("generating test RSA key: %v", err))
	}
}

const testKID = "test-key-1"

// jwksHandler serves the test public key as a JWKS document and counts
// fetches so cache behavior can be asserted.
func jwksHandler(fetchCount *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fetchCount != nil {
			fetchCount.Add(1)
		}

		pub := testKeyPair.PublicKey
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKID,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}
}

// baseClaims returns a valid claim set; extra entries override or add.
func baseClaims(extra map[string]any) jwtlib.MapClaims {
	claims := jwtlib.MapClaims{
		"sub": "user-123",
		"iss": "https://auth.example.com",
		"aud": "copilot-gateway",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

func signToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	s, err := token.SignedString(testKeyPair)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func newTestAuthenticator(t *testing.T, override func(*Config), fetchCount *atomic.Int32) *Authenticator {
	t.Helper()
	server := httptest.NewServer(jwksHandler(fetchCount))
	t.Cleanup(server.Close)

	cfg := Config{
		Issuer:   "https://auth.example.com",
		Audience: "copilot-gateway",
		JWKSURL:  server.URL + "/.well-known/jwks.json",
	}
	if override != nil {
		override(&cfg)
	}
	return New(cfg)
}

func authenticate(t *testing.T, a *Authenticator, header string) auth.AuthResult {
	t.Helper()
	r := httptest.NewRequest("POST", "/api/chat-completion-streaming", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestJWT_ValidToken(t *testing.T) {
	a := newTestAuthenticator(t, nil, nil)
	token := signToken(t, baseClaims(nil))

	result := authenticate(t, a, "Bearer "+token)
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
	if result.Identity == nil || result.Identity.Subject != "user-123" {
		t.Errorf("Identity = %+v, want subject user-123", result.Identity)
	}
}

func TestJWT_RejectedTokens(t *testing.T) {
	a := newTestAuthenticator(t, nil, nil)

	cases := []struct {
		name   string
		claims map[string]any
	}{
		{"expired", map[string]any{
			"exp": time.Now().Add(-1 * time.Hour).Unix(),
			"iat": time.Now().Add(-2 * time.Hour).Unix(),
		}},
		{"wrong audience", map[string]any{"aud": "other-api"}},
		{"wrong issuer", map[string]any{"iss": "https://evil.example.com"}},
		{"missing subject", map[string]any{"sub": nil}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := signToken(t, baseClaims(tc.claims))
			if result := authenticate(t, a, "Bearer "+token); result.Decision != auth.No {
				t.Fatalf("Decision = %d, want No", result.Decision)
			}
		})
	}
}

func TestJWT_MalformedTokens(t *testing.T) {
	a := newTestAuthenticator(t, nil, nil)

	for _, token := range []string{"", "not-a-jwt", "eyJhbGciOiJSUzI1NiJ9.invalidpayload"} {
		if result := authenticate(t, a, "Bearer "+token); result.Decision != auth.No {
			t.Errorf("token %q: Decision = %d, want No", token, result.Decision)
		}
	}
}

func TestJWT_AbstainsWithoutBearer(t *testing.T) {
	a := newTestAuthenticator(t, nil, nil)

	for _, header := range []string{"", "Basic dXNlcjpwYXNz"} {
		if result := authenticate(t, a, header); result.Decision != auth.Abstain {
			t.Errorf("header %q: Decision = %d, want Abstain", header, result.Decision)
		}
	}
}

func TestJWT_TierExtraction(t *testing.T) {
	a := newTestAuthenticator(t, nil, nil)
	token := signToken(t, baseClaims(map[string]any{"tier": "premium"}))

	result := authenticate(t, a, "Bearer "+token)
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
	if result.Identity.Tier != "premium" {
		t.Errorf("Tier = %q, want premium", result.Identity.Tier)
	}
}

func TestJWT_ScopesExtraction(t *testing.T) {
	cases := []struct {
		name  string
		scope any
		want  []string
	}{
		{"space-separated string", "read write admin", []string{"read", "write", "admin"}},
		{"json array", []any{"read", "write"}, []string{"read", "write"}},
		{"absent", nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAuthenticator(t, nil, nil)
			token := signToken(t, baseClaims(map[string]any{"scope": tc.scope}))

			result := authenticate(t, a, "Bearer "+token)
			if result.Decision != auth.Yes {
				t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
			}
			if len(result.Identity.Scopes) != len(tc.want) {
				t.Fatalf("Scopes = %v, want %v", result.Identity.Scopes, tc.want)
			}
			for i, s := range tc.want {
				if result.Identity.Scopes[i] != s {
					t.Errorf("Scopes[%d] = %q, want %q", i, result.Identity.Scopes[i], s)
				}
			}
		})
	}
}

func TestJWT_CustomClaims(t *testing.T) {
	a := newTestAuthenticator(t, func(cfg *Config) {
		cfg.UserClaim = "email"
		cfg.TierClaim = "plan"
		cfg.ScopesClaim = "permissions"
	}, nil)

	token := signToken(t, baseClaims(map[string]any{
		"email":       "alice@example.com",
		"plan":        "team",
		"permissions": "read write",
	}))

	result := authenticate(t, a, "Bearer "+token)
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "alice@example.com" {
		t.Errorf("Subject = %q, want alice@example.com", result.Identity.Subject)
	}
	if result.Identity.Tier != "team" {
		t.Errorf("Tier = %q, want team", result.Identity.Tier)
	}
	if len(result.Identity.Scopes) != 2 || result.Identity.Scopes[0] != "read" || result.Identity.Scopes[1] != "write" {
		t.Errorf("Scopes = %v, want [read write]", result.Identity.Scopes)
	}
}

func TestJWT_SkipsDisabledValidations(t *testing.T) {
	t.Run("no issuer check", func(t *testing.T) {
		a := newTestAuthenticator(t, func(cfg *Config) { cfg.Issuer = "" }, nil)
		token := signToken(t, baseClaims(map[string]any{"iss": "https://any-issuer.example.com"}))
		if result := authenticate(t, a, "Bearer "+token); result.Decision != auth.Yes {
			t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
		}
	})

	t.Run("no audience check", func(t *testing.T) {
		a := newTestAuthenticator(t, func(cfg *Config) { cfg.Audience = "" }, nil)
		token := signToken(t, baseClaims(map[string]any{"aud": "any-api"}))
		if result := authenticate(t, a, "Bearer "+token); result.Decision != auth.Yes {
			t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
		}
	})
}

func TestJWT_JWKSCaching(t *testing.T) {
	var fetchCount atomic.Int32
	a := newTestAuthenticator(t, nil, &fetchCount)
	token := signToken(t, baseClaims(nil))

	for i := 0; i < 5; i++ {
		if result := authenticate(t, a, "Bearer "+token); result.Decision != auth.Yes {
			t.Fatalf("request %d: Decision = %d, want Yes; err=%v", i, result.Decision, result.Err)
		}
	}

	if count := fetchCount.Load(); count != 1 {
		t.Errorf("JWKS fetch count = %d, want 1", count)
	}
}
