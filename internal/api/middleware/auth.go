package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
)

type contextKey string

const APIKeyContextKey contextKey = "api_key"

// Auth creates authentication middleware.
//
// The bootstrap key is accepted only while no API keys exist, so an operator
// can create the first real key and nothing more.
func Auth(store storage.Storage, bootstrapKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization header")
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				unauthorized(w, "invalid authorization header format")
				return
			}
			apiKey := strings.TrimPrefix(authHeader, "Bearer ")
			if apiKey == "" {
				unauthorized(w, "empty API key")
				return
			}

			ctx := r.Context()
			key, err := Authenticate(ctx, store, bootstrapKey, apiKey)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					unauthorized(w, "invalid API key")
					return
				}
				writeError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
				return
			}

			ctx = context.WithValue(ctx, APIKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate resolves a raw API key. It returns domain.ErrUnauthorized for
// unknown keys. The web session uses it too.
func Authenticate(ctx context.Context, store storage.Storage, bootstrapKey, apiKey string) (*domain.APIKey, error) {
	keyCount, err := store.CountAPIKeys(ctx)
	if err != nil {
		return nil, err
	}

	if keyCount == 0 && bootstrapKey != "" &&
		subtle.ConstantTimeCompare([]byte(apiKey), []byte(bootstrapKey)) == 1 {
		return &domain.APIKey{ID: domain.BootstrapAPIKeyID, Name: "Bootstrap Key"}, nil
	}

	storedKey, err := store.GetAPIKeyByHash(ctx, domain.HashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}

	// Fire and forget.
	go func() {
		_ = store.UpdateAPIKeyLastUsed(context.Background(), storedKey.ID)
	}()

	return storedKey, nil
}

// GetAPIKeyFromContext retrieves the API key from the request context.
func GetAPIKeyFromContext(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(APIKeyContextKey).(*domain.APIKey)
	return key
}

// WithAPIKey returns a context carrying key.
func WithAPIKey(ctx context.Context, key *domain.APIKey) context.Context {
	return context.WithValue(ctx, APIKeyContextKey, key)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}
