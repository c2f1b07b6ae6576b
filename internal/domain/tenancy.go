package domain

import "time"

// Tenant owns virtual machines and IP addresses.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Site is a physical location. Site names key the monitoring-environment table.
type Site struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Cluster is a hypervisor cluster. A virtual machine inherits its site from the cluster.
type Cluster struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	SiteID    string    `json:"site_id" db:"site_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Role is a device role such as "redirtp:v0.2.0".
type Role struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	VMRole    bool      `json:"vm_role" db:"vm_role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Platform is an operating-system image such as "base:v1.0.0-coreos".
type Platform struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Tag is a free-form label attached to virtual machines and services.
type Tag struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
