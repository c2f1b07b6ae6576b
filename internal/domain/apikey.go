package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// APIKeyPrefix starts every issued key so leaked keys are easy to grep for.
	APIKeyPrefix = "bvm_"

	// BootstrapAPIKeyID identifies the configured bootstrap key. It is never stored.
	BootstrapAPIKeyID = "bootstrap"

	apiKeyVisiblePrefix = len(APIKeyPrefix) + 8
)

// APIKey is an operator credential. Only its hash is stored. Batches and
// LastBatchID track what the key has submitted.
type APIKey struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	KeyHash     string     `json:"-" db:"key_hash"`
	KeyPrefix   string     `json:"key_prefix" db:"key_prefix"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	Batches     int        `json:"batches" db:"batches"`
	LastBatchID *string    `json:"last_batch_id,omitempty" db:"last_batch_id"`
	LastBatchAt *time.Time `json:"last_batch_at,omitempty" db:"last_batch_at"`
}

// IsBootstrap reports whether k stands for the bootstrap key.
func (k *APIKey) IsBootstrap() bool {
	return k != nil && k.ID == BootstrapAPIKeyID
}

// CreateAPIKeyRequest is the request body for creating an API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// IssuedAPIKey is a newly created key together with its secret, which is
// shown this one time.
type IssuedAPIKey struct {
	APIKey
	Key string `json:"key"`
}

// IssueAPIKey creates a random key named name. The caller persists the APIKey.
func IssueAPIKey(name string, now time.Time) (*IssuedAPIKey, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating API key: %w", err)
	}
	key := APIKeyPrefix + hex.EncodeToString(secret)
	return &IssuedAPIKey{
		APIKey: APIKey{
			ID:        uuid.New().String(),
			Name:      name,
			KeyHash:   HashAPIKey(key),
			KeyPrefix: key[:apiKeyVisiblePrefix],
			CreatedAt: now,
		},
		Key: key,
	}, nil
}

// HashAPIKey returns the stored form of key. Keys are 256 random bits, so a
// fast hash is enough.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
