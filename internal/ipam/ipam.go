// Package ipam allocates IP addresses for new virtual machines, either from an
// operator-supplied literal or from the first free address of a VLAN's pool prefix.
package ipam

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/validation"
)

// Catalog is the subset of the inventory the allocator reads and writes.
type Catalog interface {
	GetVRFByKey(ctx context.Context, key string) (*domain.VRF, error)
	GetPrefixByVLAN(ctx context.Context, siteID, vlanID string) (*domain.Prefix, error)
	UpdatePrefix(ctx context.Context, prefix *domain.Prefix) error
	FindIPAddresses(ctx context.Context, address string) ([]*domain.IPAddress, error)
	ListIPAddresses(ctx context.Context) ([]*domain.IPAddress, error)
	CreateIPAddress(ctx context.Context, addr *domain.IPAddress) error
}

// Options are the fixed values stamped on every allocated address.
type Options struct {
	VRF           string
	PrivateDomain string
	PublicDomain  string
}

// Request describes the address a record needs.
type Request struct {
	Hostname string
	Site     *domain.Site
	Tenant   *domain.Tenant
	VLAN     *domain.VLAN // pool source when Explicit is empty
	Explicit string       // operator-supplied CIDR address; wins over VLAN
}

// Allocator hands out addresses.
type Allocator struct {
	catalog Catalog
	opts    Options
}

// NewAllocator creates an Allocator.
func NewAllocator(catalog Catalog, opts Options) *Allocator {
	return &Allocator{catalog: catalog, opts: opts}
}

// Allocate records the explicit address when there is one, after checking it
// for duplicates; the VLAN is then ignored. Without one it draws the first
// free address from the VLAN's prefix, marking that prefix as a pool. Pools
// hand out every address, so the first allocation from an empty pool is the
// network address itself (10.50.61.0/24). The returned address is persisted
// but not yet assigned to an interface.
func (a *Allocator) Allocate(ctx context.Context, req Request) (*domain.IPAddress, error) {
	var address netip.Prefix
	switch {
	case req.Explicit != "":
		existing, err := a.catalog.FindIPAddresses(ctx, req.Explicit)
		if err != nil {
			return nil, fmt.Errorf("checking address %s: %w", req.Explicit, err)
		}
		if len(existing) > 0 {
			return nil, &domain.DuplicateAddressError{Address: existing[0].Address}
		}
		p, err := validation.ParseAddress(req.Explicit)
		if err != nil {
			return nil, fmt.Errorf("ip_address: %w: %v", domain.ErrInvalidInput, err)
		}
		address = p
	case req.VLAN != nil:
		p, err := a.fromPool(ctx, req.Site, req.VLAN)
		if err != nil {
			return nil, err
		}
		address = p
	default:
		return nil, fmt.Errorf("ip_address: %w: required when no VLAN is given", domain.ErrInvalidInput)
	}

	vrf, err := a.catalog.GetVRFByKey(ctx, a.opts.VRF)
	if err != nil {
		return nil, &domain.ResolutionError{Field: "vrf", Entity: "vrf", Key: a.opts.VRF, Err: err}
	}

	now := time.Now()
	addr := &domain.IPAddress{
		ID:        uuid.New().String(),
		Address:   address.String(),
		VRFID:     &vrf.ID,
		DNSName:   DNSName(req.Hostname, address.Addr(), a.opts.PrivateDomain, a.opts.PublicDomain),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Tenant != nil {
		addr.TenantID = &req.Tenant.ID
	}
	if err := a.catalog.CreateIPAddress(ctx, addr); err != nil {
		return nil, domain.Persist("create", "ip address", err)
	}
	return addr, nil
}

func (a *Allocator) fromPool(ctx context.Context, site *domain.Site, vlan *domain.VLAN) (netip.Prefix, error) {
	prefix, err := a.catalog.GetPrefixByVLAN(ctx, site.ID, vlan.ID)
	if err != nil {
		return netip.Prefix{}, &domain.ResolutionError{
			Field: "vlan", Entity: "prefix", Key: fmt.Sprintf("%s/%d", site.Slug, vlan.VID), Err: err,
		}
	}
	network, err := netip.ParsePrefix(prefix.Prefix)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("prefix %s: %w", prefix.Prefix, err)
	}

	if !prefix.IsPool {
		prefix.IsPool = true
		if err := a.catalog.UpdatePrefix(ctx, prefix); err != nil {
			return netip.Prefix{}, domain.Persist("update", "prefix", err)
		}
	}

	used, err := a.usedIn(ctx, network)
	if err != nil {
		return netip.Prefix{}, err
	}
	free, ok := FirstAvailable(network, true, used)
	if !ok {
		return netip.Prefix{}, &domain.PoolExhaustedError{Prefix: prefix.Prefix}
	}
	return netip.PrefixFrom(free, network.Bits()), nil
}

// usedIn collects the host addresses already recorded inside network.
func (a *Allocator) usedIn(ctx context.Context, network netip.Prefix) (map[netip.Addr]bool, error) {
	addrs, err := a.catalog.ListIPAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	used := make(map[netip.Addr]bool)
	for _, addr := range addrs {
		p, err := netip.ParsePrefix(addr.Address)
		if err != nil {
			continue
		}
		if network.Contains(p.Addr()) {
			used[p.Addr()] = true
		}
	}
	return used, nil
}

// FirstAvailable returns the lowest address in network that is not in used.
// A pool hands out every address; otherwise IPv4 networks larger than /31
// keep their network and broadcast addresses back.
func FirstAvailable(network netip.Prefix, pool bool, used map[netip.Addr]bool) (netip.Addr, bool) {
	network = network.Masked()
	reserveEdges := !pool && network.Addr().Is4() && network.Bits() < 31

	addr := network.Addr()
	if reserveEdges {
		addr = addr.Next()
	}
	for ; addr.IsValid() && network.Contains(addr); addr = addr.Next() {
		if reserveEdges && !network.Contains(addr.Next()) {
			break // broadcast
		}
		if !used[addr] {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// IsPrivate reports whether addr belongs to a non-public range.
func IsPrivate(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		sharedAddressSpace.Contains(addr)
}

// DNSName returns the reverse-DNS name for hostname at addr.
func DNSName(hostname string, addr netip.Addr, privateDomain, publicDomain string) string {
	if IsPrivate(addr) {
		return hostname + "." + privateDomain
	}
	return hostname + "." + publicDomain
}

// PrefixOf returns the network containing an interface address,
// e.g. "10.50.61.10/24" -> "10.50.61.0/24".
func PrefixOf(address string) (string, error) {
	p, err := validation.ParseAddress(address)
	if err != nil {
		return "", errors.Join(domain.ErrInvalidInput, err)
	}
	return p.Masked().String(), nil
}
