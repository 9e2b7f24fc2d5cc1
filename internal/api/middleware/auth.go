package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/axwise/gateway/internal/api/response"
	"github.com/axwise/gateway/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefixLen = 8

// devScopes are granted to requests authenticated with the development token.
var devScopes = []string{"admin"}

// Auth provides authentication and scope-checking middleware. Requests carry
// either a real API key (bcrypt hash stored in the database) or, in
// development mode, the fixed dev token, which maps to the default tenant.
// The dev token is an OSS/dev-mode fallback, not a security boundary.
type Auth struct {
	store    store.Store
	devToken string

	mu            sync.Mutex
	defaultTenant uuid.UUID
}

// NewAuth creates a new Auth middleware. devToken may be empty to disable
// the development fallback entirely.
func NewAuth(s store.Store, devToken string) *Auth {
	return &Auth{store: s, devToken: devToken}
}

// Authenticate validates the Bearer token, resolves it to a tenant, and sets
// tenant_id, key_prefix, and scopes in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if a.devToken != "" && rawKey == a.devToken {
			tenantID, err := a.lookupDefaultTenant(r.Context())
			if err != nil {
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "Failed to resolve default tenant", nil)
				return
			}
			ctx := SetTenantID(r.Context(), tenantID)
			ctx = setKeyPrefix(ctx, "dev")
			ctx = setScopes(ctx, devScopes)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		prefix := rawKey[:keyPrefixLen]

		keys, err := a.store.GetAPIKeyByPrefix(r.Context(), prefix)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		// Find matching key by bcrypt comparison
		var matched bool
		for _, key := range keys {
			if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
				ctx := r.Context()
				ctx = SetTenantID(ctx, key.TenantID)
				ctx = setKeyPrefix(ctx, prefix)
				ctx = setScopes(ctx, key.Scopes)
				r = r.WithContext(ctx)
				matched = true

				// Update last_used_at async
				go a.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)
				break
			}
		}

		if !matched {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes := getScopes(r)
			for _, s := range scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

// lookupDefaultTenant resolves and memoizes the default tenant id.
func (a *Auth) lookupDefaultTenant(ctx context.Context) (uuid.UUID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.defaultTenant != uuid.Nil {
		return a.defaultTenant, nil
	}
	tenant, err := a.store.GetDefaultTenant(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	a.defaultTenant = tenant.ID
	return a.defaultTenant, nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
