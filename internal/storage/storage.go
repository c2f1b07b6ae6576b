package storage

import (
	"context"
	"time"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

// Storage defines the interface for the inventory catalog.
// Implementations must be safe for concurrent use.
//
// Get methods look up by ID. GetXByKey methods look up by the name or slug an
// operator types into a CSV row and return domain.ErrNotFound when nothing matches.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)
	RecordAPIKeyBatch(ctx context.Context, id, batchRunID string, at time.Time) error

	// Tenants
	CreateTenant(ctx context.Context, tenant *domain.Tenant) error
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	GetTenantByKey(ctx context.Context, key string) (*domain.Tenant, error)
	ListTenants(ctx context.Context) ([]*domain.Tenant, error)

	// Sites
	CreateSite(ctx context.Context, site *domain.Site) error
	GetSite(ctx context.Context, id string) (*domain.Site, error)
	GetSiteByKey(ctx context.Context, key string) (*domain.Site, error)
	ListSites(ctx context.Context) ([]*domain.Site, error)

	// Clusters
	CreateCluster(ctx context.Context, cluster *domain.Cluster) error
	GetCluster(ctx context.Context, id string) (*domain.Cluster, error)
	GetClusterByKey(ctx context.Context, key string) (*domain.Cluster, error)
	ListClusters(ctx context.Context) ([]*domain.Cluster, error)

	// Roles
	CreateRole(ctx context.Context, role *domain.Role) error
	GetRole(ctx context.Context, id string) (*domain.Role, error)
	GetRoleByKey(ctx context.Context, key string) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]*domain.Role, error)

	// Platforms
	CreatePlatform(ctx context.Context, platform *domain.Platform) error
	GetPlatform(ctx context.Context, id string) (*domain.Platform, error)
	GetPlatformByKey(ctx context.Context, key string) (*domain.Platform, error)
	ListPlatforms(ctx context.Context) ([]*domain.Platform, error)

	// Tags
	CreateTag(ctx context.Context, tag *domain.Tag) error
	GetTagByKey(ctx context.Context, key string) (*domain.Tag, error)
	ListTags(ctx context.Context) ([]*domain.Tag, error)

	// VRFs
	CreateVRF(ctx context.Context, vrf *domain.VRF) error
	GetVRFByKey(ctx context.Context, key string) (*domain.VRF, error)
	ListVRFs(ctx context.Context) ([]*domain.VRF, error)

	// VLANs
	CreateVLAN(ctx context.Context, vlan *domain.VLAN) error
	GetVLAN(ctx context.Context, id string) (*domain.VLAN, error)
	GetVLANByVID(ctx context.Context, siteID string, vid int) (*domain.VLAN, error)
	ListVLANs(ctx context.Context) ([]*domain.VLAN, error)

	// Prefixes
	CreatePrefix(ctx context.Context, prefix *domain.Prefix) error
	GetPrefixByVLAN(ctx context.Context, siteID, vlanID string) (*domain.Prefix, error)
	GetPrefix(ctx context.Context, siteID, prefix string) (*domain.Prefix, error)
	ListPrefixes(ctx context.Context) ([]*domain.Prefix, error)
	UpdatePrefix(ctx context.Context, prefix *domain.Prefix) error

	// IP Addresses
	CreateIPAddress(ctx context.Context, addr *domain.IPAddress) error
	GetIPAddress(ctx context.Context, id string) (*domain.IPAddress, error)
	// FindIPAddresses returns every address whose host part equals that of
	// address, ignoring the prefix length.
	FindIPAddresses(ctx context.Context, address string) ([]*domain.IPAddress, error)
	ListIPAddresses(ctx context.Context) ([]*domain.IPAddress, error)
	UpdateIPAddress(ctx context.Context, addr *domain.IPAddress) error
	DeleteIPAddress(ctx context.Context, id string) error

	// Virtual Machines
	CreateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error
	GetVirtualMachine(ctx context.Context, id string) (*domain.VirtualMachine, error)
	GetVirtualMachineByName(ctx context.Context, name string) (*domain.VirtualMachine, error)
	ListVirtualMachines(ctx context.Context) ([]*domain.VirtualMachine, error)
	ListVirtualMachinesByNamePrefix(ctx context.Context, prefix string) ([]*domain.VirtualMachine, error)
	UpdateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error
	DeleteVirtualMachine(ctx context.Context, id string) error

	// VM Interfaces
	CreateVMInterface(ctx context.Context, iface *domain.VMInterface) error
	ListVMInterfaces(ctx context.Context, vmID string) ([]*domain.VMInterface, error)
	DeleteVMInterface(ctx context.Context, id string) error

	// Services
	CreateService(ctx context.Context, svc *domain.Service) error
	ListServices(ctx context.Context, vmID string) ([]*domain.Service, error)
	DeleteService(ctx context.Context, id string) error

	// Batch Runs
	CreateBatchRun(ctx context.Context, run *domain.BatchRun) error
	GetBatchRun(ctx context.Context, id string) (*domain.BatchRun, error)
	ListBatchRuns(ctx context.Context, limit, offset int) ([]*domain.BatchRun, error)

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}
