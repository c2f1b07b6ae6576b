// Package catalog loads reference data (tenants, sites, clusters, roles,
// platforms, tags, VRFs, VLANs, prefixes, addresses) into the inventory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
	"github.com/bcnelson/bulk-vm-provisioner/internal/validation"
)

// Seed is a catalog document. Entities refer to each other by name or slug.
type Seed struct {
	Tenants     []NamedEntity `yaml:"tenants" json:"tenants"`
	Sites       []NamedEntity `yaml:"sites" json:"sites"`
	Clusters    []ClusterSeed `yaml:"clusters" json:"clusters"`
	Roles       []RoleSeed    `yaml:"roles" json:"roles"`
	Platforms   []NamedEntity `yaml:"platforms" json:"platforms"`
	Tags        []string      `yaml:"tags" json:"tags"`
	VRFs        []string      `yaml:"vrfs" json:"vrfs"`
	VLANs       []VLANSeed    `yaml:"vlans" json:"vlans"`
	Prefixes    []PrefixSeed  `yaml:"prefixes" json:"prefixes"`
	IPAddresses []AddressSeed `yaml:"ip_addresses" json:"ip_addresses"`
}

// NamedEntity is an entity with a name and an optional slug derived from it.
type NamedEntity struct {
	Name string `yaml:"name" json:"name"`
	Slug string `yaml:"slug" json:"slug"`
}

// ClusterSeed places a cluster at a site.
type ClusterSeed struct {
	Name string `yaml:"name" json:"name"`
	Site string `yaml:"site" json:"site"`
}

// RoleSeed is a device role. VMRole defaults to true.
type RoleSeed struct {
	Name   string `yaml:"name" json:"name"`
	Slug   string `yaml:"slug" json:"slug"`
	VMRole *bool  `yaml:"vm_role" json:"vm_role"`
}

// VLANSeed is a VLAN at a site.
type VLANSeed struct {
	Site string `yaml:"site" json:"site"`
	VID  int    `yaml:"vid" json:"vid"`
	Name string `yaml:"name" json:"name"`
}

// PrefixSeed is a network at a site, optionally tied to a VLAN by VID.
type PrefixSeed struct {
	Site   string `yaml:"site" json:"site"`
	Prefix string `yaml:"prefix" json:"prefix"`
	VLAN   int    `yaml:"vlan" json:"vlan"`
	VRF    string `yaml:"vrf" json:"vrf"`
	IsPool bool   `yaml:"is_pool" json:"is_pool"`
}

// AddressSeed is an address that is already in use.
type AddressSeed struct {
	Address string `yaml:"address" json:"address"`
	VRF     string `yaml:"vrf" json:"vrf"`
	Tenant  string `yaml:"tenant" json:"tenant"`
	DNSName string `yaml:"dns_name" json:"dns_name"`
}

// Summary counts what Apply created and what already existed, per entity kind.
type Summary struct {
	Created map[string]int `json:"created"`
	Skipped map[string]int `json:"skipped"`
}

// ParseSeed decodes a YAML or JSON seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	return &s, nil
}

// LoadSeed reads a seed document from path.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}
	return ParseSeed(data)
}

// Apply creates every entity in seed that store does not have yet.
// Applying the same seed twice creates nothing the second time.
func Apply(ctx context.Context, store storage.Storage, seed *Seed) (*Summary, error) {
	sum := &Summary{Created: map[string]int{}, Skipped: map[string]int{}}
	count := func(kind string, err error) error {
		switch {
		case err == nil:
			sum.Created[kind]++
		case errors.Is(err, domain.ErrAlreadyExists):
			sum.Skipped[kind]++
		default:
			return err
		}
		return nil
	}
	now := time.Now()

	for _, t := range seed.Tenants {
		err := store.CreateTenant(ctx, &domain.Tenant{
			ID: uuid.New().String(), Name: t.Name, Slug: slugOr(t.Slug, t.Name), CreatedAt: now,
		})
		if err := count("tenants", err); err != nil {
			return nil, fmt.Errorf("tenant %q: %w", t.Name, err)
		}
	}

	for _, s := range seed.Sites {
		err := store.CreateSite(ctx, &domain.Site{
			ID: uuid.New().String(), Name: s.Name, Slug: slugOr(s.Slug, s.Name), CreatedAt: now,
		})
		if err := count("sites", err); err != nil {
			return nil, fmt.Errorf("site %q: %w", s.Name, err)
		}
	}

	for _, c := range seed.Clusters {
		site, err := store.GetSiteByKey(ctx, c.Site)
		if err != nil {
			return nil, fmt.Errorf("cluster %q: site %q: %w", c.Name, c.Site, err)
		}
		err = store.CreateCluster(ctx, &domain.Cluster{
			ID: uuid.New().String(), Name: c.Name, SiteID: site.ID, CreatedAt: now,
		})
		if err := count("clusters", err); err != nil {
			return nil, fmt.Errorf("cluster %q: %w", c.Name, err)
		}
	}

	for _, r := range seed.Roles {
		vmRole := r.VMRole == nil || *r.VMRole
		err := store.CreateRole(ctx, &domain.Role{
			ID: uuid.New().String(), Name: r.Name, Slug: slugOr(r.Slug, r.Name), VMRole: vmRole, CreatedAt: now,
		})
		if err := count("roles", err); err != nil {
			return nil, fmt.Errorf("role %q: %w", r.Name, err)
		}
	}

	for _, p := range seed.Platforms {
		err := store.CreatePlatform(ctx, &domain.Platform{
			ID: uuid.New().String(), Name: p.Name, Slug: slugOr(p.Slug, p.Name), CreatedAt: now,
		})
		if err := count("platforms", err); err != nil {
			return nil, fmt.Errorf("platform %q: %w", p.Name, err)
		}
	}

	for _, name := range seed.Tags {
		if err := validation.ValidateTagName(name); err != nil {
			return nil, fmt.Errorf("tag %q: %w", name, err)
		}
		err := store.CreateTag(ctx, &domain.Tag{
			ID: uuid.New().String(), Name: name, Slug: validation.Slugify(name), CreatedAt: now,
		})
		if err := count("tags", err); err != nil {
			return nil, fmt.Errorf("tag %q: %w", name, err)
		}
	}

	for _, name := range seed.VRFs {
		err := store.CreateVRF(ctx, &domain.VRF{ID: uuid.New().String(), Name: name, CreatedAt: now})
		if err := count("vrfs", err); err != nil {
			return nil, fmt.Errorf("vrf %q: %w", name, err)
		}
	}

	for _, v := range seed.VLANs {
		site, err := store.GetSiteByKey(ctx, v.Site)
		if err != nil {
			return nil, fmt.Errorf("vlan %d: site %q: %w", v.VID, v.Site, err)
		}
		err = store.CreateVLAN(ctx, &domain.VLAN{
			ID: uuid.New().String(), VID: v.VID, Name: v.Name, SiteID: site.ID, CreatedAt: now,
		})
		if err := count("vlans", err); err != nil {
			return nil, fmt.Errorf("vlan %d: %w", v.VID, err)
		}
	}

	for _, p := range seed.Prefixes {
		prefix, err := buildPrefix(ctx, store, p, now)
		if err != nil {
			return nil, fmt.Errorf("prefix %s: %w", p.Prefix, err)
		}
		if err := count("prefixes", store.CreatePrefix(ctx, prefix)); err != nil {
			return nil, fmt.Errorf("prefix %s: %w", p.Prefix, err)
		}
	}

	for _, a := range seed.IPAddresses {
		addr, err := buildAddress(ctx, store, a, now)
		if err != nil {
			return nil, fmt.Errorf("ip address %s: %w", a.Address, err)
		}
		if err := count("ip_addresses", store.CreateIPAddress(ctx, addr)); err != nil {
			return nil, fmt.Errorf("ip address %s: %w", a.Address, err)
		}
	}

	return sum, nil
}

func buildPrefix(ctx context.Context, store storage.Storage, p PrefixSeed, now time.Time) (*domain.Prefix, error) {
	network, err := validation.ParseAddress(p.Prefix)
	if err != nil {
		return nil, err
	}
	if network.Masked() != network {
		return nil, fmt.Errorf("host bits set, did you mean %s", network.Masked())
	}
	site, err := store.GetSiteByKey(ctx, p.Site)
	if err != nil {
		return nil, fmt.Errorf("site %q: %w", p.Site, err)
	}
	prefix := &domain.Prefix{
		ID:        uuid.New().String(),
		Prefix:    network.String(),
		SiteID:    site.ID,
		IsPool:    p.IsPool,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.VLAN != 0 {
		vlan, err := store.GetVLANByVID(ctx, site.ID, p.VLAN)
		if err != nil {
			return nil, fmt.Errorf("vlan %d: %w", p.VLAN, err)
		}
		prefix.VLANID = &vlan.ID
	}
	if p.VRF != "" {
		vrf, err := store.GetVRFByKey(ctx, p.VRF)
		if err != nil {
			return nil, fmt.Errorf("vrf %q: %w", p.VRF, err)
		}
		prefix.VRFID = &vrf.ID
	}
	return prefix, nil
}

func buildAddress(ctx context.Context, store storage.Storage, a AddressSeed, now time.Time) (*domain.IPAddress, error) {
	if err := validation.ValidateAddress(a.Address); err != nil {
		return nil, err
	}
	addr := &domain.IPAddress{
		ID:        uuid.New().String(),
		Address:   a.Address,
		DNSName:   a.DNSName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.VRF != "" {
		vrf, err := store.GetVRFByKey(ctx, a.VRF)
		if err != nil {
			return nil, fmt.Errorf("vrf %q: %w", a.VRF, err)
		}
		addr.VRFID = &vrf.ID
	}
	if a.Tenant != "" {
		tenant, err := store.GetTenantByKey(ctx, a.Tenant)
		if err != nil {
			return nil, fmt.Errorf("tenant %q: %w", a.Tenant, err)
		}
		addr.TenantID = &tenant.ID
	}
	return addr, nil
}

func slugOr(slug, name string) string {
	if slug != "" {
		return slug
	}
	return validation.Slugify(name)
}
