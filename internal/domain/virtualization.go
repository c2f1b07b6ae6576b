package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// VirtualMachine is the inventory record created by a provisioning run.
type VirtualMachine struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Status       Status    `json:"status" db:"status"`
	ClusterID    string    `json:"cluster_id" db:"cluster_id"`
	SiteID       string    `json:"site_id" db:"site_id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	RoleID       string    `json:"role_id" db:"role_id"`
	PlatformID   string    `json:"platform_id" db:"platform_id"`
	VCPUs        int       `json:"vcpus" db:"vcpus"`
	Memory       int       `json:"memory" db:"memory"` // MB
	Disk         int       `json:"disk" db:"disk"`     // GB
	Comments     string    `json:"comments" db:"comments"`
	PrimaryIP4ID *string   `json:"primary_ip4_id,omitempty" db:"primary_ip4_id"`
	Tags         []string  `json:"tags" db:"-"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// VMInterface is a network interface of a virtual machine.
type VMInterface struct {
	ID               string        `json:"id" db:"id"`
	VirtualMachineID string        `json:"virtual_machine_id" db:"virtual_machine_id"`
	Name             string        `json:"name" db:"name"`
	MTU              int           `json:"mtu" db:"mtu"`
	Mode             InterfaceMode `json:"mode,omitempty" db:"mode"`
	UntaggedVLANID   *string       `json:"untagged_vlan_id,omitempty" db:"untagged_vlan_id"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// Service is a monitoring endpoint exposed by a virtual machine.
type Service struct {
	ID               string       `json:"id" db:"id"`
	VirtualMachineID string       `json:"virtual_machine_id" db:"virtual_machine_id"`
	Name             string       `json:"name" db:"name"`
	Protocol         string       `json:"protocol" db:"protocol"`
	Ports            IntList      `json:"ports" db:"ports"`
	CustomFields     CustomFields `json:"custom_fields" db:"custom_fields"`
	IPAddressIDs     []string     `json:"ip_address_ids" db:"-"`
	Tags             []string     `json:"tags" db:"-"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}

// VirtualMachineDetail bundles a virtual machine with its dependent objects.
type VirtualMachineDetail struct {
	VirtualMachine *VirtualMachine `json:"virtual_machine"`
	PrimaryIP4     *IPAddress      `json:"primary_ip4,omitempty"`
	Interfaces     []*VMInterface  `json:"interfaces"`
	Services       []*Service      `json:"services"`
}

// IntList is stored as a JSON array.
type IntList []int

// Value implements driver.Valuer.
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(l))
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *IntList) Scan(src any) error {
	return scanJSON(src, l)
}

// CustomFields is stored as a JSON object.
type CustomFields map[string]any

// Value implements driver.Valuer.
func (c CustomFields) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(c))
	return string(b), err
}

// Scan implements sql.Scanner.
func (c *CustomFields) Scan(src any) error {
	return scanJSON(src, c)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
