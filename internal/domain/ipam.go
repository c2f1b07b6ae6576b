package domain

import "time"

// VRF is a routing domain.
type VRF struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// VLAN is scoped to a site and identified there by its VID.
type VLAN struct {
	ID        string    `json:"id" db:"id"`
	VID       int       `json:"vid" db:"vid"`
	Name      string    `json:"name" db:"name"`
	SiteID    string    `json:"site_id" db:"site_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Prefix is a network in CIDR notation. When IsPool is set every address in
// the network is assignable.
type Prefix struct {
	ID        string    `json:"id" db:"id"`
	Prefix    string    `json:"prefix" db:"prefix"`
	SiteID    string    `json:"site_id" db:"site_id"`
	VLANID    *string   `json:"vlan_id,omitempty" db:"vlan_id"`
	VRFID     *string   `json:"vrf_id,omitempty" db:"vrf_id"`
	IsPool    bool      `json:"is_pool" db:"is_pool"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AssignedVMInterface is the object type recorded on addresses owned by a VM interface.
const AssignedVMInterface = "virtualization.vminterface"

// IPAddress is a host address with its prefix length, e.g. "10.50.61.10/24".
type IPAddress struct {
	ID                 string    `json:"id" db:"id"`
	Address            string    `json:"address" db:"address"`
	VRFID              *string   `json:"vrf_id,omitempty" db:"vrf_id"`
	TenantID           *string   `json:"tenant_id,omitempty" db:"tenant_id"`
	DNSName            string    `json:"dns_name" db:"dns_name"`
	AssignedObjectType string    `json:"assigned_object_type,omitempty" db:"assigned_object_type"`
	AssignedObjectID   string    `json:"assigned_object_id,omitempty" db:"assigned_object_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
