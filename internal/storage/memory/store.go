package memory

import (
	"context"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing
// and dry runs. Entities are copied on the way in and out so callers never
// share memory with the store.
type Store struct {
	mu   sync.RWMutex
	data *catalog
}

type catalog struct {
	apiKeys     map[string]*domain.APIKey
	tenants     map[string]*domain.Tenant
	sites       map[string]*domain.Site
	clusters    map[string]*domain.Cluster
	roles       map[string]*domain.Role
	platforms   map[string]*domain.Platform
	tags        map[string]*domain.Tag
	vrfs        map[string]*domain.VRF
	vlans       map[string]*domain.VLAN
	prefixes    map[string]*domain.Prefix
	ipAddresses map[string]*domain.IPAddress
	vms         map[string]*domain.VirtualMachine
	interfaces  map[string]*domain.VMInterface
	services    map[string]*domain.Service
	batchRuns   map[string]*domain.BatchRun
}

func newCatalog() *catalog {
	return &catalog{
		apiKeys:     make(map[string]*domain.APIKey),
		tenants:     make(map[string]*domain.Tenant),
		sites:       make(map[string]*domain.Site),
		clusters:    make(map[string]*domain.Cluster),
		roles:       make(map[string]*domain.Role),
		platforms:   make(map[string]*domain.Platform),
		tags:        make(map[string]*domain.Tag),
		vrfs:        make(map[string]*domain.VRF),
		vlans:       make(map[string]*domain.VLAN),
		prefixes:    make(map[string]*domain.Prefix),
		ipAddresses: make(map[string]*domain.IPAddress),
		vms:         make(map[string]*domain.VirtualMachine),
		interfaces:  make(map[string]*domain.VMInterface),
		services:    make(map[string]*domain.Service),
		batchRuns:   make(map[string]*domain.BatchRun),
	}
}

// clone returns a deep copy used as a transaction snapshot.
func (c *catalog) clone() *catalog {
	return &catalog{
		apiKeys:     cloneTable(c.apiKeys, copyOf[domain.APIKey]),
		tenants:     cloneTable(c.tenants, copyOf[domain.Tenant]),
		sites:       cloneTable(c.sites, copyOf[domain.Site]),
		clusters:    cloneTable(c.clusters, copyOf[domain.Cluster]),
		roles:       cloneTable(c.roles, copyOf[domain.Role]),
		platforms:   cloneTable(c.platforms, copyOf[domain.Platform]),
		tags:        cloneTable(c.tags, copyOf[domain.Tag]),
		vrfs:        cloneTable(c.vrfs, copyOf[domain.VRF]),
		vlans:       cloneTable(c.vlans, copyOf[domain.VLAN]),
		prefixes:    cloneTable(c.prefixes, copyOf[domain.Prefix]),
		ipAddresses: cloneTable(c.ipAddresses, copyOf[domain.IPAddress]),
		vms:         cloneTable(c.vms, copyVM),
		interfaces:  cloneTable(c.interfaces, copyOf[domain.VMInterface]),
		services:    cloneTable(c.services, copyService),
		batchRuns:   cloneTable(c.batchRuns, copyBatchRun),
	}
}

func cloneTable[T any](src map[string]*T, cp func(*T) *T) map[string]*T {
	dst := make(map[string]*T, len(src))
	for k, v := range src {
		dst[k] = cp(v)
	}
	return dst
}

func copyOf[T any](v *T) *T {
	c := *v
	return &c
}

func copyVM(vm *domain.VirtualMachine) *domain.VirtualMachine {
	c := *vm
	c.Tags = append([]string(nil), vm.Tags...)
	return &c
}

func copyService(svc *domain.Service) *domain.Service {
	c := *svc
	c.Ports = append(domain.IntList(nil), svc.Ports...)
	c.IPAddressIDs = append([]string(nil), svc.IPAddressIDs...)
	c.Tags = append([]string(nil), svc.Tags...)
	if svc.CustomFields != nil {
		c.CustomFields = make(domain.CustomFields, len(svc.CustomFields))
		for k, v := range svc.CustomFields {
			c.CustomFields[k] = v
		}
	}
	return &c
}

func copyBatchRun(run *domain.BatchRun) *domain.BatchRun {
	c := *run
	c.Outcomes = append(domain.Outcomes(nil), run.Outcomes...)
	return &c
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{data: newCatalog()}
}

func (s *Store) Close() error { return nil }

// BeginTx snapshots the store. Writes through the transaction are invisible to
// the store until Commit, which replaces the store's contents with the
// snapshot; writes made to the store directly in the meantime are lost.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()
	return &Tx{Store: &Store{data: snapshot}, parent: s}, nil
}

// Tx is a snapshot transaction for the in-memory store.
type Tx struct {
	*Store
	parent *Store
	done   bool
}

func (t *Tx) Commit() error {
	if t.done {
		return domain.ErrInvalidInput
	}
	t.done = true
	t.Store.mu.RLock()
	data := t.Store.data
	t.Store.mu.RUnlock()

	t.parent.mu.Lock()
	t.parent.data = data
	t.parent.mu.Unlock()
	return nil
}

func (t *Tx) Rollback() error {
	t.done = true
	return nil
}

func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, domain.ErrInvalidInput
}

// matchesKey compares a lookup key against a name and slug.
func matchesKey(key, name, slug string) bool {
	return key != "" && (key == name || key == slug)
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.apiKeys[key.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.data.apiKeys[key.ID] = copyOf(key)
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.data.apiKeys {
		if key.KeyHash == keyHash {
			return copyOf(key), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*domain.APIKey, 0, len(s.data.apiKeys))
	for _, key := range s.data.apiKeys {
		keys = append(keys, copyOf(key))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.apiKeys[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.data.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, exists := s.data.apiKeys[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	return nil
}

func (s *Store) RecordAPIKeyBatch(ctx context.Context, id, batchRunID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, exists := s.data.apiKeys[id]
	if !exists {
		return domain.ErrNotFound
	}
	key.Batches++
	key.LastBatchID = &batchRunID
	key.LastBatchAt = &at
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.apiKeys), nil
}

// ============================================
// Tenants
// ============================================

func (s *Store) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.tenants {
		if existing.ID == tenant.ID || existing.Name == tenant.Name || existing.Slug == tenant.Slug {
			return domain.ErrAlreadyExists
		}
	}
	s.data.tenants[tenant.ID] = copyOf(tenant)
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, exists := s.data.tenants[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyOf(tenant), nil
}

func (s *Store) GetTenantByKey(ctx context.Context, key string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tenant := range s.data.tenants {
		if matchesKey(key, tenant.Name, tenant.Slug) {
			return copyOf(tenant), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListTenants(ctx context.Context) ([]*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]*domain.Tenant, 0, len(s.data.tenants))
	for _, tenant := range s.data.tenants {
		tenants = append(tenants, copyOf(tenant))
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

// ============================================
// Sites
// ============================================

func (s *Store) CreateSite(ctx context.Context, site *domain.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.sites {
		if existing.ID == site.ID || existing.Name == site.Name || existing.Slug == site.Slug {
			return domain.ErrAlreadyExists
		}
	}
	s.data.sites[site.ID] = copyOf(site)
	return nil
}

func (s *Store) GetSite(ctx context.Context, id string) (*domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, exists := s.data.sites[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyOf(site), nil
}

func (s *Store) GetSiteByKey(ctx context.Context, key string) (*domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.data.sites {
		if matchesKey(key, site.Name, site.Slug) {
			return copyOf(site), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListSites(ctx context.Context) ([]*domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sites := make([]*domain.Site, 0, len(s.data.sites))
	for _, site := range s.data.sites {
		sites = append(sites, copyOf(site))
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites, nil
}

// ============================================
// Clusters
// ============================================

func (s *Store) CreateCluster(ctx context.Context, cluster *domain.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.sites[cluster.SiteID]; !exists {
		return domain.ErrNotFound
	}
	for _, existing := range s.data.clusters {
		if existing.ID == cluster.ID || existing.Name == cluster.Name {
			return domain.ErrAlreadyExists
		}
	}
	s.data.clusters[cluster.ID] = copyOf(cluster)
	return nil
}

func (s *Store) GetCluster(ctx context.Context, id string) (*domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cluster, exists := s.data.clusters[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyOf(cluster), nil
}

func (s *Store) GetClusterByKey(ctx context.Context, key string) (*domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cluster := range s.data.clusters {
		if key != "" && cluster.Name == key {
			return copyOf(cluster), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListClusters(ctx context.Context) ([]*domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clusters := make([]*domain.Cluster, 0, len(s.data.clusters))
	for _, cluster := range s.data.clusters {
		clusters = append(clusters, copyOf(cluster))
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	return clusters, nil
}

// ============================================
// Roles
// ============================================

func (s *Store) CreateRole(ctx context.Context, role *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.roles {
		if existing.ID == role.ID || existing.Name == role.Name || existing.Slug == role.Slug {
			return domain.ErrAlreadyExists
		}
	}
	s.data.roles[role.ID] = copyOf(role)
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, exists := s.data.roles[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyOf(role), nil
}

func (s *Store) GetRoleByKey(ctx context.Context, key string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.data.roles {
		if matchesKey(key, role.Name, role.Slug) {
			return copyOf(role), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]*domain.Role, 0, len(s.data.roles))
	for _, role := range s.data.roles {
		roles = append(roles, copyOf(role))
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// ============================================
// Platforms
// ============================================

func (s *Store) CreatePlatform(ctx context.Context, platform *domain.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.platforms {
		if existing.ID == platform.ID || existing.Name == platform.Name || existing.Slug == platform.Slug {
			return domain.ErrAlreadyExists
		}
	}
	s.data.platforms[platform.ID] = copyOf(platform)
	return nil
}

func (s *Store) GetPlatform(ctx context.Context, id string) (*domain.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	platform, exists := s.data.platforms[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyOf(platform), nil
}

func (s *Store) GetPlatformByKey(ctx context.Context, key string) (*domain.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, platform := range s.data.platforms {
		if matchesKey(key, platform.Name, platform.Slug) {
			return copyOf(platform), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListPlatforms(ctx context.Context) ([]*domain.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	platforms := make([]*domain.Platform, 0, len(s.data.platforms))
	for _, platform := range s.data.platforms {
		platforms = append(platforms, copyOf(platform))
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i].Name < platforms[j].Name })
	return platforms, nil
}

// ============================================
// Tags
// ============================================

func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.tags {
		if existing.ID == tag.ID || existing.Name == tag.Name || existing.Slug == tag.Slug {
			return domain.ErrAlreadyExists
		}
	}
	s.data.tags[tag.ID] = copyOf(tag)
	return nil
}

func (s *Store) GetTagByKey(ctx context.Context, key string) (*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tag := range s.data.tags {
		if matchesKey(key, tag.Name, tag.Slug) {
			return copyOf(tag), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make([]*domain.Tag, 0, len(s.data.tags))
	for _, tag := range s.data.tags {
		tags = append(tags, copyOf(tag))
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// ============================================
// VRFs
// ============================================

func (s *Store) CreateVRF(ctx context.Context, vrf *domain.VRF) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.vrfs {
		if existing.ID == vrf.ID || existing.Name == vrf.Name {
			return domain.ErrAlreadyExists
		}
	}
	s.data.vrfs[vrf.ID] = copyOf(vrf)
	return nil
}

func (s *Store) GetVRFByKey(ctx context.Context, key string) (*domain.VRF, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, vrf := range s.data.vrfs {
		if key != "" && vrf.Name == key {
			return copyOf(vrf), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListVRFs(ctx context.Context) ([]*domain.VRF, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vrfs := make([]*domain.VRF, 0, len(s.data.vrfs))
	for _, vrf := range s.data.vrfs {
		vrfs = append(vrfs, copyOf(vrf))
	}
	sort.Slice(vrfs, func(i, j int) bool { return vrfs[i].Name < vrfs[j].Name })
	return vrfs, nil
}

// ============================================
// VLANs
// ============================================

func (s *Store) CreateVLAN(ctx context.Context, vlan *domain.VLAN) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.vlans {
		if existing.ID == vlan.ID || (existing.SiteID == vlan.SiteID && existing.VID == vlan.VID) {
			return domain.ErrAlreadyExists
		}
	}
	s.data.vlans[vlan.ID] = copyOf(vlan)
	return nil
}

func (s *Store) GetVLAN(ctx context.Context, id string) (*domain.VLAN, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vlan, exists := s.data.vlans[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyOf(vlan), nil
}

func (s *Store) GetVLANByVID(ctx context.Context, siteID string, vid int) (*domain.VLAN, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, vlan := range s.data.vlans {
		if vlan.SiteID == siteID && vlan.VID == vid {
			return copyOf(vlan), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListVLANs(ctx context.Context) ([]*domain.VLAN, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vlans := make([]*domain.VLAN, 0, len(s.data.vlans))
	for _, vlan := range s.data.vlans {
		vlans = append(vlans, copyOf(vlan))
	}
	sort.Slice(vlans, func(i, j int) bool {
		if vlans[i].SiteID != vlans[j].SiteID {
			return vlans[i].SiteID < vlans[j].SiteID
		}
		return vlans[i].VID < vlans[j].VID
	})
	return vlans, nil
}

// ============================================
// Prefixes
// ============================================

func (s *Store) CreatePrefix(ctx context.Context, prefix *domain.Prefix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.prefixes {
		if existing.ID == prefix.ID || (existing.SiteID == prefix.SiteID && existing.Prefix == prefix.Prefix) {
			return domain.ErrAlreadyExists
		}
	}
	s.data.prefixes[prefix.ID] = copyOf(prefix)
	return nil
}

func (s *Store) GetPrefixByVLAN(ctx context.Context, siteID, vlanID string) (*domain.Prefix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, prefix := range s.data.prefixes {
		if prefix.SiteID == siteID && prefix.VLANID != nil && *prefix.VLANID == vlanID {
			return copyOf(prefix), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetPrefix(ctx context.Context, siteID, cidr string) (*domain.Prefix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, prefix := range s.data.prefixes {
		if prefix.SiteID == siteID && prefix.Prefix == cidr {
			return copyOf(prefix), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListPrefixes(ctx context.Context) ([]*domain.Prefix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefixes := make([]*domain.Prefix, 0, len(s.data.prefixes))
	for _, prefix := range s.data.prefixes {
		prefixes = append(prefixes, copyOf(prefix))
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].Prefix < prefixes[j].Prefix })
	return prefixes, nil
}

func (s *Store) UpdatePrefix(ctx context.Context, prefix *domain.Prefix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.prefixes[prefix.ID]; !exists {
		return domain.ErrNotFound
	}
	s.data.prefixes[prefix.ID] = copyOf(prefix)
	return nil
}

// ============================================
// IP Addresses
// ============================================

// hostOf strips the prefix length from an address, tolerating bare addresses.
func hostOf(address string) string {
	if p, err := netip.ParsePrefix(address); err == nil {
		return p.Addr().String()
	}
	if a, err := netip.ParseAddr(address); err == nil {
		return a.String()
	}
	host, _, _ := strings.Cut(address, "/")
	return host
}

func (s *Store) CreateIPAddress(ctx context.Context, addr *domain.IPAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.ipAddresses {
		if existing.ID == addr.ID || existing.Address == addr.Address {
			return domain.ErrAlreadyExists
		}
	}
	s.data.ipAddresses[addr.ID] = copyOf(addr)
	return nil
}

func (s *Store) GetIPAddress(ctx context.Context, id string) (*domain.IPAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, exists := s.data.ipAddresses[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyOf(addr), nil
}

func (s *Store) FindIPAddresses(ctx context.Context, address string) ([]*domain.IPAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host := hostOf(address)
	var found []*domain.IPAddress
	for _, addr := range s.data.ipAddresses {
		if hostOf(addr.Address) == host {
			found = append(found, copyOf(addr))
		}
	}
	return found, nil
}

func (s *Store) ListIPAddresses(ctx context.Context) ([]*domain.IPAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]*domain.IPAddress, 0, len(s.data.ipAddresses))
	for _, addr := range s.data.ipAddresses {
		addrs = append(addrs, copyOf(addr))
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Address < addrs[j].Address })
	return addrs, nil
}

func (s *Store) UpdateIPAddress(ctx context.Context, addr *domain.IPAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.ipAddresses[addr.ID]; !exists {
		return domain.ErrNotFound
	}
	s.data.ipAddresses[addr.ID] = copyOf(addr)
	return nil
}

func (s *Store) DeleteIPAddress(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.ipAddresses[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.data.ipAddresses, id)
	for _, vm := range s.data.vms {
		if vm.PrimaryIP4ID != nil && *vm.PrimaryIP4ID == id {
			vm.PrimaryIP4ID = nil
		}
	}
	for _, svc := range s.data.services {
		ids := svc.IPAddressIDs[:0]
		for _, ipID := range svc.IPAddressIDs {
			if ipID != id {
				ids = append(ids, ipID)
			}
		}
		svc.IPAddressIDs = ids
	}
	return nil
}

// ============================================
// Virtual Machines
// ============================================

// checkTags rejects tag names that are not in the catalog.
func (s *Store) checkTags(names []string) error {
	for _, name := range names {
		found := false
		for _, tag := range s.data.tags {
			if tag.Name == name {
				found = true
				break
			}
		}
		if !found {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (s *Store) CreateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.vms {
		if existing.ID == vm.ID || existing.Name == vm.Name {
			return domain.ErrAlreadyExists
		}
	}
	if err := s.checkTags(vm.Tags); err != nil {
		return err
	}
	s.data.vms[vm.ID] = copyVM(vm)
	return nil
}

func (s *Store) GetVirtualMachine(ctx context.Context, id string) (*domain.VirtualMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vm, exists := s.data.vms[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyVM(vm), nil
}

func (s *Store) GetVirtualMachineByName(ctx context.Context, name string) (*domain.VirtualMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, vm := range s.data.vms {
		if vm.Name == name {
			return copyVM(vm), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListVirtualMachines(ctx context.Context) ([]*domain.VirtualMachine, error) {
	return s.ListVirtualMachinesByNamePrefix(ctx, "")
}

func (s *Store) ListVirtualMachinesByNamePrefix(ctx context.Context, prefix string) ([]*domain.VirtualMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vms := []*domain.VirtualMachine{}
	for _, vm := range s.data.vms {
		if strings.HasPrefix(vm.Name, prefix) {
			vms = append(vms, copyVM(vm))
		}
	}
	sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })
	return vms, nil
}

func (s *Store) UpdateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.vms[vm.ID]; !exists {
		return domain.ErrNotFound
	}
	for _, existing := range s.data.vms {
		if existing.ID != vm.ID && existing.Name == vm.Name {
			return domain.ErrAlreadyExists
		}
	}
	if err := s.checkTags(vm.Tags); err != nil {
		return err
	}
	s.data.vms[vm.ID] = copyVM(vm)
	return nil
}

// DeleteVirtualMachine removes the machine together with its interfaces and services.
func (s *Store) DeleteVirtualMachine(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.vms[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.data.vms, id)
	for ifaceID, iface := range s.data.interfaces {
		if iface.VirtualMachineID == id {
			delete(s.data.interfaces, ifaceID)
		}
	}
	for svcID, svc := range s.data.services {
		if svc.VirtualMachineID == id {
			delete(s.data.services, svcID)
		}
	}
	return nil
}

// ============================================
// VM Interfaces
// ============================================

func (s *Store) CreateVMInterface(ctx context.Context, iface *domain.VMInterface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.vms[iface.VirtualMachineID]; !exists {
		return domain.ErrNotFound
	}
	for _, existing := range s.data.interfaces {
		if existing.ID == iface.ID || (existing.VirtualMachineID == iface.VirtualMachineID && existing.Name == iface.Name) {
			return domain.ErrAlreadyExists
		}
	}
	s.data.interfaces[iface.ID] = copyOf(iface)
	return nil
}

func (s *Store) ListVMInterfaces(ctx context.Context, vmID string) ([]*domain.VMInterface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ifaces := []*domain.VMInterface{}
	for _, iface := range s.data.interfaces {
		if iface.VirtualMachineID == vmID {
			ifaces = append(ifaces, copyOf(iface))
		}
	}
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Name < ifaces[j].Name })
	return ifaces, nil
}

func (s *Store) DeleteVMInterface(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.interfaces[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.data.interfaces, id)
	for _, addr := range s.data.ipAddresses {
		if addr.AssignedObjectType == domain.AssignedVMInterface && addr.AssignedObjectID == id {
			addr.AssignedObjectType = ""
			addr.AssignedObjectID = ""
		}
	}
	return nil
}

// ============================================
// Services
// ============================================

func (s *Store) CreateService(ctx context.Context, svc *domain.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.vms[svc.VirtualMachineID]; !exists {
		return domain.ErrNotFound
	}
	if _, exists := s.data.services[svc.ID]; exists {
		return domain.ErrAlreadyExists
	}
	if err := s.checkTags(svc.Tags); err != nil {
		return err
	}
	for _, id := range svc.IPAddressIDs {
		if _, exists := s.data.ipAddresses[id]; !exists {
			return domain.ErrNotFound
		}
	}
	s.data.services[svc.ID] = copyService(svc)
	return nil
}

func (s *Store) ListServices(ctx context.Context, vmID string) ([]*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	services := []*domain.Service{}
	for _, svc := range s.data.services {
		if svc.VirtualMachineID == vmID {
			services = append(services, copyService(svc))
		}
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

func (s *Store) DeleteService(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.services[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.data.services, id)
	return nil
}

// ============================================
// Batch Runs
// ============================================

func (s *Store) CreateBatchRun(ctx context.Context, run *domain.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.batchRuns[run.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.data.batchRuns[run.ID] = copyBatchRun(run)
	return nil
}

func (s *Store) GetBatchRun(ctx context.Context, id string) (*domain.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, exists := s.data.batchRuns[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return copyBatchRun(run), nil
}

func (s *Store) ListBatchRuns(ctx context.Context, limit, offset int) ([]*domain.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*domain.BatchRun, 0, len(s.data.batchRuns))
	for _, run := range s.data.batchRuns {
		runs = append(runs, copyBatchRun(run))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if offset >= len(runs) {
		return []*domain.BatchRun{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}
