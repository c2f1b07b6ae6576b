// Package naming derives sequential virtual machine hostnames of the form
// {site}-{env}-{role}-{NNN}.
package naming

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

// VirtualMachineLister is the catalog capability the allocator needs.
type VirtualMachineLister interface {
	ListVirtualMachinesByNamePrefix(ctx context.Context, prefix string) ([]*domain.VirtualMachine, error)
}

// Allocator generates hostnames that do not collide with existing records.
type Allocator struct {
	vms VirtualMachineLister
}

// NewAllocator creates an Allocator backed by vms.
func NewAllocator(vms VirtualMachineLister) *Allocator {
	return &Allocator{vms: vms}
}

// Prefix builds the hostname prefix for a site slug, environment tag and role
// name, e.g. ("odn1", "env_vlb", "redirtp:v0.2.0") -> "odn1-vlb-redirtp-".
func Prefix(siteSlug, envTag, role string) string {
	env := strings.TrimPrefix(envTag, "env_")
	role, _, _ = strings.Cut(role, ":")
	return fmt.Sprintf("%s-%s-%s-", siteSlug, env, role)
}

// Generate returns the next free hostname for site, env tag and role.
// The sequence is one above the highest existing sequence under the prefix,
// regardless of the order the catalog returns names in.
func (a *Allocator) Generate(ctx context.Context, site *domain.Site, envTag string, role *domain.Role) (string, error) {
	prefix := Prefix(site.Slug, envTag, role.Name)
	vms, err := a.vms.ListVirtualMachinesByNamePrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("listing virtual machines with prefix %q: %w", prefix, err)
	}
	names := make([]string, len(vms))
	for i, vm := range vms {
		names[i] = vm.Name
	}
	return prefix + FormatSequence(NextSequence(prefix, names)), nil
}

// NextSequence returns one more than the largest sequence number found among
// names under prefix, or 1 when there is none. The sequence is the first
// hyphen-delimited token after the prefix; names where it is not a number are
// ignored.
func NextSequence(prefix string, names []string) int {
	highest := 0
	for _, name := range names {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		token, _, _ := strings.Cut(rest, "-")
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1
}

// FormatSequence zero-pads n to three digits; larger numbers are printed as is.
func FormatSequence(n int) string {
	return fmt.Sprintf("%03d", n)
}
