package naming

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage/memory"
)

func TestPrefix(t *testing.T) {
	tests := []struct {
		site, env, role, want string
	}{
		{"odn1", "env_vlb", "redirtp:v0.2.0", "odn1-vlb-redirtp-"},
		{"cph2", "env_prod", "consul", "cph2-prod-consul-"},
		{"osl2", "vlb", "web:v1:extra", "osl2-vlb-web-"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Prefix(tt.site, tt.env, tt.role))
		})
	}
}

func TestFormatSequence(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{1, "001"},
		{9, "009"},
		{10, "010"},
		{99, "099"},
		{100, "100"},
		{1000, "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSequence(tt.n))
		})
	}
}

func TestNextSequence(t *testing.T) {
	const prefix = "odn1-vlb-redirtp-"

	tests := []struct {
		name  string
		names []string
		want  int
	}{
		{"none", nil, 1},
		{"one", []string{"odn1-vlb-redirtp-001"}, 2},
		{"out of order", []string{"odn1-vlb-redirtp-007", "odn1-vlb-redirtp-012", "odn1-vlb-redirtp-003"}, 13},
		{"gap is not reused", []string{"odn1-vlb-redirtp-001", "odn1-vlb-redirtp-005"}, 6},
		{"non-numeric ignored", []string{"odn1-vlb-redirtp-old", "odn1-vlb-redirtp-002"}, 3},
		{"suffix after sequence", []string{"odn1-vlb-redirtp-004-decom"}, 5},
		{"other prefix ignored", []string{"odn1-vlb-redis-009"}, 1},
		{"above 999", []string{"odn1-vlb-redirtp-999"}, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextSequence(prefix, tt.names))
		})
	}
}

func seedVMs(t *testing.T, store *memory.Store, names ...string) {
	t.Helper()
	ctx := context.Background()
	for _, name := range names {
		now := time.Now()
		require.NoError(t, store.CreateVirtualMachine(ctx, &domain.VirtualMachine{
			ID:        uuid.New().String(),
			Name:      name,
			Status:    domain.StatusStaged,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}
}

func TestGenerate(t *testing.T) {
	site := &domain.Site{Name: "odn1", Slug: "odn1"}
	role := &domain.Role{Name: "redirtp:v0.2.0"}

	t.Run("empty catalog", func(t *testing.T) {
		a := NewAllocator(memory.New())
		got, err := a.Generate(context.Background(), site, "env_vlb", role)
		require.NoError(t, err)
		assert.Equal(t, "odn1-vlb-redirtp-001", got)
	})

	t.Run("after nine", func(t *testing.T) {
		store := memory.New()
		for i := 1; i <= 9; i++ {
			seedVMs(t, store, fmt.Sprintf("odn1-vlb-redirtp-%03d", i))
		}
		got, err := NewAllocator(store).Generate(context.Background(), site, "env_vlb", role)
		require.NoError(t, err)
		assert.Equal(t, "odn1-vlb-redirtp-010", got)
	})

	t.Run("after ninety-nine", func(t *testing.T) {
		store := memory.New()
		for i := 1; i <= 99; i++ {
			seedVMs(t, store, fmt.Sprintf("odn1-vlb-redirtp-%03d", i))
		}
		got, err := NewAllocator(store).Generate(context.Background(), site, "env_vlb", role)
		require.NoError(t, err)
		assert.Equal(t, "odn1-vlb-redirtp-100", got)
	})

	t.Run("highest wins over insertion order", func(t *testing.T) {
		store := memory.New()
		seedVMs(t, store, "odn1-vlb-redirtp-020", "odn1-vlb-redirtp-003")
		got, err := NewAllocator(store).Generate(context.Background(), site, "env_vlb", role)
		require.NoError(t, err)
		assert.Equal(t, "odn1-vlb-redirtp-021", got)
	})
}
