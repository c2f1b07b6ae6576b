package ipam

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	alloc  *Allocator
	site   *domain.Site
	tenant *domain.Tenant
	vlan   *domain.VLAN
	prefix *domain.Prefix
}

func newFixture(t *testing.T, cidr string) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	store := memory.New()

	f := &fixture{
		store:  store,
		site:   &domain.Site{ID: "site-1", Name: "odn1", Slug: "odn1", CreatedAt: now},
		tenant: &domain.Tenant{ID: "tenant-1", Name: "PatientSky Hosting", Slug: "patientsky-hosting", CreatedAt: now},
		vlan:   &domain.VLAN{ID: "vlan-1", VID: 61, Name: "vlb", SiteID: "site-1", CreatedAt: now},
	}
	vlanID := f.vlan.ID
	f.prefix = &domain.Prefix{ID: "prefix-1", Prefix: cidr, SiteID: f.site.ID, VLANID: &vlanID, CreatedAt: now, UpdatedAt: now}

	require.NoError(t, store.CreateSite(ctx, f.site))
	require.NoError(t, store.CreateTenant(ctx, f.tenant))
	require.NoError(t, store.CreateVRF(ctx, &domain.VRF{ID: "vrf-1", Name: "global", CreatedAt: now}))
	require.NoError(t, store.CreateVLAN(ctx, f.vlan))
	require.NoError(t, store.CreatePrefix(ctx, f.prefix))

	f.alloc = NewAllocator(store, Options{VRF: "global", PrivateDomain: "patientsky.zone", PublicDomain: "patientsky.dev"})
	return f
}

func (f *fixture) addAddress(t *testing.T, address string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.store.CreateIPAddress(context.Background(), &domain.IPAddress{
		ID: "existing-" + address, Address: address, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestAllocateExplicit(t *testing.T) {
	f := newFixture(t, "10.50.61.0/24")

	addr, err := f.alloc.Allocate(context.Background(), Request{
		Hostname: "odn1-vlb-redirtp-001",
		Site:     f.site,
		Tenant:   f.tenant,
		Explicit: "10.50.61.10/24",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.50.61.10/24", addr.Address)
	assert.Equal(t, "odn1-vlb-redirtp-001.patientsky.zone", addr.DNSName)
	require.NotNil(t, addr.VRFID)
	assert.Equal(t, "vrf-1", *addr.VRFID)
	require.NotNil(t, addr.TenantID)
	assert.Equal(t, "tenant-1", *addr.TenantID)
	assert.Empty(t, addr.AssignedObjectID)

	stored, err := f.store.GetIPAddress(context.Background(), addr.ID)
	require.NoError(t, err)
	assert.Equal(t, addr.Address, stored.Address)

	// The prefix is untouched on the explicit path.
	prefix, err := f.store.GetPrefixByVLAN(context.Background(), f.site.ID, f.vlan.ID)
	require.NoError(t, err)
	assert.False(t, prefix.IsPool)
}

func TestAllocateExplicitPublic(t *testing.T) {
	f := newFixture(t, "10.50.61.0/24")

	addr, err := f.alloc.Allocate(context.Background(), Request{
		Hostname: "web-001", Site: f.site, Tenant: f.tenant, Explicit: "185.12.4.7/28",
	})
	require.NoError(t, err)
	assert.Equal(t, "web-001.patientsky.dev", addr.DNSName)
}

func TestAllocateExplicitWinsOverVLAN(t *testing.T) {
	f := newFixture(t, "10.50.61.0/24")

	addr, err := f.alloc.Allocate(context.Background(), Request{
		Hostname: "odn1-vlb-redirtp-001",
		Site:     f.site,
		Tenant:   f.tenant,
		VLAN:     f.vlan,
		Explicit: "10.50.61.10/24",
	})
	require.NoError(t, err)
	assert.Equal(t, "10.50.61.10/24", addr.Address)

	addrs, err := f.store.ListIPAddresses(context.Background())
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
	prefix, err := f.store.GetPrefixByVLAN(context.Background(), f.site.ID, f.vlan.ID)
	require.NoError(t, err)
	assert.False(t, prefix.IsPool)
}

func TestAllocateDuplicate(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		explicit string
		vlan     bool
	}{
		{"same address", "10.50.61.10/24", "10.50.61.10/24", false},
		{"different prefix length", "10.50.61.10/32", "10.50.61.10/24", false},
		{"checked before pool allocation", "10.50.61.10/24", "10.50.61.10/24", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "10.50.61.0/24")
			f.addAddress(t, tt.existing)

			req := Request{Hostname: "host-001", Site: f.site, Tenant: f.tenant, Explicit: tt.explicit}
			if tt.vlan {
				req.VLAN = f.vlan
			}
			_, err := f.alloc.Allocate(context.Background(), req)

			var dup *domain.DuplicateAddressError
			require.True(t, errors.As(err, &dup), "got %v", err)
			assert.Equal(t, tt.existing, dup.Address)
			assert.Equal(t, tt.existing+" is already assigned", err.Error())

			// No writes beyond the check.
			addrs, err := f.store.ListIPAddresses(context.Background())
			require.NoError(t, err)
			assert.Len(t, addrs, 1)
			prefix, err := f.store.GetPrefixByVLAN(context.Background(), f.site.ID, f.vlan.ID)
			require.NoError(t, err)
			assert.False(t, prefix.IsPool)
		})
	}
}

func TestAllocateFromPool(t *testing.T) {
	f := newFixture(t, "10.50.61.0/24")
	f.addAddress(t, "10.50.61.0/24")
	f.addAddress(t, "10.50.61.1/24")
	f.addAddress(t, "10.0.0.2/8") // outside the prefix

	ctx := context.Background()
	first, err := f.alloc.Allocate(ctx, Request{Hostname: "a-001", Site: f.site, Tenant: f.tenant, VLAN: f.vlan})
	require.NoError(t, err)
	second, err := f.alloc.Allocate(ctx, Request{Hostname: "a-002", Site: f.site, Tenant: f.tenant, VLAN: f.vlan})
	require.NoError(t, err)

	assert.Equal(t, "10.50.61.2/24", first.Address)
	assert.Equal(t, "10.50.61.3/24", second.Address)
	assert.NotEqual(t, first.Address, second.Address)

	prefix, err := f.store.GetPrefixByVLAN(ctx, f.site.ID, f.vlan.ID)
	require.NoError(t, err)
	assert.True(t, prefix.IsPool)
}

func TestAllocateFromPoolFailures(t *testing.T) {
	t.Run("no prefix for vlan", func(t *testing.T) {
		f := newFixture(t, "10.50.61.0/24")
		other := &domain.VLAN{ID: "vlan-2", VID: 62, SiteID: f.site.ID}

		_, err := f.alloc.Allocate(context.Background(), Request{Hostname: "a", Site: f.site, VLAN: other})
		var res *domain.ResolutionError
		require.True(t, errors.As(err, &res), "got %v", err)
		assert.Equal(t, "vlan", res.Field)
		assert.Equal(t, "prefix", res.Entity)
	})

	t.Run("exhausted", func(t *testing.T) {
		f := newFixture(t, "10.50.62.0/31")
		f.addAddress(t, "10.50.62.0/31")
		f.addAddress(t, "10.50.62.1/31")

		_, err := f.alloc.Allocate(context.Background(), Request{Hostname: "a", Site: f.site, VLAN: f.vlan})
		assert.True(t, errors.Is(err, domain.ErrPoolExhausted), "got %v", err)
	})

	t.Run("missing explicit without vlan", func(t *testing.T) {
		f := newFixture(t, "10.50.61.0/24")
		_, err := f.alloc.Allocate(context.Background(), Request{Hostname: "a", Site: f.site})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
	})

	t.Run("malformed explicit", func(t *testing.T) {
		f := newFixture(t, "10.50.61.0/24")
		_, err := f.alloc.Allocate(context.Background(), Request{Hostname: "a", Site: f.site, Explicit: "10.50.61.10"})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
	})

	t.Run("missing vrf", func(t *testing.T) {
		f := newFixture(t, "10.50.61.0/24")
		f.alloc.opts.VRF = "mgmt"
		_, err := f.alloc.Allocate(context.Background(), Request{Hostname: "a", Site: f.site, Explicit: "10.50.61.10/24"})
		assert.True(t, errors.Is(err, domain.ErrUnresolved), "got %v", err)
	})
}

func TestFirstAvailable(t *testing.T) {
	addrs := func(ss ...string) map[netip.Addr]bool {
		m := map[netip.Addr]bool{}
		for _, s := range ss {
			m[netip.MustParseAddr(s)] = true
		}
		return m
	}

	tests := []struct {
		name    string
		network string
		pool    bool
		used    map[netip.Addr]bool
		want    string
		wantOK  bool
	}{
		{"pool starts at network address", "10.0.0.0/24", true, nil, "10.0.0.0", true},
		{"non-pool skips network address", "10.0.0.0/24", false, nil, "10.0.0.1", true},
		{"skips used", "10.0.0.0/24", false, addrs("10.0.0.1", "10.0.0.2"), "10.0.0.3", true},
		{"non-pool never returns broadcast", "10.0.0.0/30", false, addrs("10.0.0.1", "10.0.0.2"), "", false},
		{"pool may return broadcast", "10.0.0.0/30", true, addrs("10.0.0.0", "10.0.0.1", "10.0.0.2"), "10.0.0.3", true},
		{"point-to-point uses both", "10.0.0.0/31", false, addrs("10.0.0.0"), "10.0.0.1", true},
		{"host route", "10.0.0.5/32", false, nil, "10.0.0.5", true},
		{"unmasked input", "10.0.0.77/24", true, nil, "10.0.0.0", true},
		{"ipv6", "2001:db8::/126", false, addrs("2001:db8::"), "2001:db8::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstAvailable(netip.MustParsePrefix(tt.network), tt.pool, tt.used)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestDNSName(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"10.50.61.10", "host.patientsky.zone"},
		{"172.16.0.1", "host.patientsky.zone"},
		{"192.168.1.1", "host.patientsky.zone"},
		{"100.64.0.1", "host.patientsky.zone"},
		{"fd00::1", "host.patientsky.zone"},
		{"8.8.8.8", "host.patientsky.dev"},
		{"2001:4860::1", "host.patientsky.dev"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got := DNSName("host", netip.MustParseAddr(tt.addr), "patientsky.zone", "patientsky.dev")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrefixOf(t *testing.T) {
	got, err := PrefixOf("10.50.61.10/24")
	require.NoError(t, err)
	assert.Equal(t, "10.50.61.0/24", got)

	_, err = PrefixOf("10.50.61.10")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
