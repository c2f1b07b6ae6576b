package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAPIKey(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	issued, err := IssueAPIKey("ci", now)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(issued.Key, APIKeyPrefix))
	assert.Len(t, issued.Key, len(APIKeyPrefix)+64)
	assert.Equal(t, issued.Key[:12], issued.KeyPrefix)
	assert.Equal(t, HashAPIKey(issued.Key), issued.KeyHash)
	assert.NotEqual(t, issued.Key, issued.KeyHash)
	assert.Equal(t, "ci", issued.Name)
	assert.Equal(t, now, issued.CreatedAt)
	assert.NotEmpty(t, issued.ID)
	assert.Zero(t, issued.Batches)
	assert.Nil(t, issued.LastBatchID)
	assert.False(t, issued.IsBootstrap())

	other, err := IssueAPIKey("ci", now)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Key, other.Key)
	assert.NotEqual(t, issued.ID, other.ID)
}

func TestHashAPIKey(t *testing.T) {
	assert.Equal(t, HashAPIKey("bvm_abc"), HashAPIKey("bvm_abc"))
	assert.NotEqual(t, HashAPIKey("bvm_abc"), HashAPIKey("bvm_abd"))
	assert.Len(t, HashAPIKey("bvm_abc"), 64)
}

func TestAPIKeyIsBootstrap(t *testing.T) {
	assert.True(t, (&APIKey{ID: BootstrapAPIKeyID}).IsBootstrap())
	assert.False(t, (&APIKey{ID: "key-1"}).IsBootstrap())
	assert.False(t, (*APIKey)(nil).IsBootstrap())
}
