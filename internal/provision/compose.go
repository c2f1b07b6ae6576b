package provision

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/naming"
	"github.com/bcnelson/bulk-vm-provisioner/internal/validation"
)

// Tag name prefixes for the environment and datazone dimensions.
const (
	EnvTagPrefix      = "env_"
	DatazoneTagPrefix = "datazone_"
)

// Input holds one record's field values after row/default substitution.
// References may arrive already resolved (from a form that picked an entity)
// or as the name or slug an operator typed.
type Input struct {
	Status        string
	Tenant        domain.Reference[domain.Tenant]
	Cluster       domain.Reference[domain.Cluster]
	AlertType     string
	Datazone      domain.Reference[domain.Tag] // "1" or "datazone_1"
	Env           domain.Reference[domain.Tag] // "vlb" or "env_vlb"
	Platform      domain.Reference[domain.Platform]
	Role          domain.Reference[domain.Role]
	Backup        domain.Reference[domain.Tag]
	BackupOffsite domain.Reference[domain.Tag] // zero when there is no offsite backup
	VCPUs         string
	Memory        string
	Disk          string
	Hostname      string // empty to generate one
	Address       string // CIDR; may be empty when VLAN names a pool
	VLAN          string // optional VID at the cluster's site
	ExtraTags     string // comma-separated
}

// Record is a candidate virtual machine with every reference resolved.
type Record struct {
	Status        domain.Status
	Tenant        *domain.Tenant
	Cluster       *domain.Cluster
	Site          *domain.Site
	AlertType     string
	Datazone      *domain.Tag
	Env           *domain.Tag
	Platform      *domain.Platform
	Role          *domain.Role
	Backup        *domain.Tag
	BackupOffsite *domain.Tag
	VCPUs         int
	Memory        int
	Disk          int
	Hostname      string
	Address       string
	VLAN          *domain.VLAN
	ExtraTags     []string
	ExtraTagsRaw  string // as submitted, for the comment block
	Comments      string
}

// EnvName returns the environment without its tag prefix, e.g. "vlb".
func (r *Record) EnvName() string {
	return strings.TrimPrefix(r.Env.Name, EnvTagPrefix)
}

// DatazoneName returns the datazone without its tag prefix, e.g. "1".
func (r *Record) DatazoneName() string {
	return strings.TrimPrefix(r.Datazone.Name, DatazoneTagPrefix)
}

// Lookup is the read-only catalog capability the composer resolves against.
type Lookup interface {
	GetTenantByKey(ctx context.Context, key string) (*domain.Tenant, error)
	GetClusterByKey(ctx context.Context, key string) (*domain.Cluster, error)
	GetSite(ctx context.Context, id string) (*domain.Site, error)
	GetRoleByKey(ctx context.Context, key string) (*domain.Role, error)
	GetPlatformByKey(ctx context.Context, key string) (*domain.Platform, error)
	GetTagByKey(ctx context.Context, key string) (*domain.Tag, error)
	GetVLANByVID(ctx context.Context, siteID string, vid int) (*domain.VLAN, error)
	naming.VirtualMachineLister
}

// Composer resolves Inputs into Records.
type Composer struct {
	catalog          Lookup
	names            *naming.Allocator
	defaultAlertType string
}

// NewComposer creates a Composer. defaultAlertType applies when an input has none.
func NewComposer(catalog Lookup, defaultAlertType string) *Composer {
	if defaultAlertType == "" {
		defaultAlertType = domain.DefaultAlertType
	}
	return &Composer{
		catalog:          catalog,
		names:            naming.NewAllocator(catalog),
		defaultAlertType: defaultAlertType,
	}
}

// resolve looks up a required reference, reporting a miss as a ResolutionError on field.
func resolve[T any](ctx context.Context, field, entity string, ref domain.Reference[T], find func(context.Context, string) (*T, error)) (*T, error) {
	if ref.IsZero() {
		return nil, &domain.ResolutionError{Field: field, Entity: entity}
	}
	v, err := ref.Resolve(ctx, find)
	if err != nil {
		return nil, &domain.ResolutionError{Field: field, Entity: entity, Key: ref.Key(), Err: err}
	}
	return v, nil
}

// prefixedTag finds a tag by name, adding prefix when the key lacks it.
func (c *Composer) prefixedTag(prefix string) func(context.Context, string) (*domain.Tag, error) {
	return func(ctx context.Context, key string) (*domain.Tag, error) {
		if !strings.HasPrefix(key, prefix) {
			key = prefix + key
		}
		return c.catalog.GetTagByKey(ctx, key)
	}
}

// Compose validates and resolves every field of in. The first field that
// cannot be resolved aborts composition; nothing is written to the catalog.
func (c *Composer) Compose(ctx context.Context, in Input) (*Record, error) {
	r := &Record{Status: domain.ParseStatus(in.Status)}
	var err error

	if r.Tenant, err = resolve(ctx, "tenant", "tenant", in.Tenant, c.catalog.GetTenantByKey); err != nil {
		return nil, err
	}
	if r.Cluster, err = resolve(ctx, "cluster", "cluster", in.Cluster, c.catalog.GetClusterByKey); err != nil {
		return nil, err
	}
	if r.Site, err = c.catalog.GetSite(ctx, r.Cluster.SiteID); err != nil {
		return nil, &domain.ResolutionError{Field: "cluster", Entity: "site", Key: r.Cluster.SiteID, Err: err}
	}

	r.AlertType = in.AlertType
	if r.AlertType == "" {
		r.AlertType = c.defaultAlertType
	}
	if err := validation.ValidateAlertType(r.AlertType); err != nil {
		return nil, validation.NewValidationError("prom_alert_type", r.AlertType, err.Error())
	}

	if r.Datazone, err = resolve(ctx, "datazone", "tag", in.Datazone, c.prefixedTag(DatazoneTagPrefix)); err != nil {
		return nil, err
	}
	if r.Env, err = resolve(ctx, "env", "tag", in.Env, c.prefixedTag(EnvTagPrefix)); err != nil {
		return nil, err
	}
	if r.Platform, err = resolve(ctx, "platform", "platform", in.Platform, c.catalog.GetPlatformByKey); err != nil {
		return nil, err
	}
	if r.Role, err = resolve(ctx, "role", "role", in.Role, c.catalog.GetRoleByKey); err != nil {
		return nil, err
	}
	if r.Backup, err = resolve(ctx, "backup", "tag", in.Backup, c.catalog.GetTagByKey); err != nil {
		return nil, err
	}
	if !in.BackupOffsite.IsZero() {
		if r.BackupOffsite, err = resolve(ctx, "backup_offsite", "tag", in.BackupOffsite, c.catalog.GetTagByKey); err != nil {
			return nil, err
		}
	}

	if r.VCPUs, err = validation.ParsePositiveInt("vcpus", in.VCPUs); err != nil {
		return nil, err
	}
	if r.Memory, err = validation.ParsePositiveInt("memory", in.Memory); err != nil {
		return nil, err
	}
	if r.Disk, err = validation.ParsePositiveInt("disk", in.Disk); err != nil {
		return nil, err
	}

	r.Address = strings.TrimSpace(in.Address)
	if r.Address != "" {
		if err := validation.ValidateAddress(r.Address); err != nil {
			return nil, validation.NewValidationError("ip_address", r.Address, err.Error())
		}
	}
	if r.VLAN, err = c.vlan(ctx, r.Site, strings.TrimSpace(in.VLAN), r.Address); err != nil {
		return nil, err
	}

	r.Hostname = strings.TrimSpace(in.Hostname)
	if r.Hostname == "" {
		if r.Hostname, err = c.names.Generate(ctx, r.Site, r.Env.Name, r.Role); err != nil {
			return nil, fmt.Errorf("hostname: %w", err)
		}
	} else if err := validation.ValidateHostname(r.Hostname); err != nil {
		return nil, validation.NewValidationError("hostname", r.Hostname, err.Error())
	}

	r.ExtraTagsRaw = in.ExtraTags
	if r.ExtraTags, err = parseExtraTags(in.ExtraTags); err != nil {
		return nil, err
	}

	r.Comments = CommentBlock(r)
	return r, nil
}

// vlan resolves the optional VLAN hint. An unknown VID falls back to the
// explicit address when there is one.
func (c *Composer) vlan(ctx context.Context, site *domain.Site, vid, address string) (*domain.VLAN, error) {
	if vid == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(vid)
	if err != nil {
		return nil, validation.NewValidationError("vlan", vid, "must be a VLAN ID")
	}
	vlan, err := c.catalog.GetVLANByVID(ctx, site.ID, n)
	if err != nil {
		if address != "" {
			return nil, nil
		}
		return nil, &domain.ResolutionError{Field: "vlan", Entity: "vlan", Key: site.Slug + "/" + vid, Err: err}
	}
	return vlan, nil
}

func parseExtraTags(s string) ([]string, error) {
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if err := validation.ValidateTagName(tag); err != nil {
			return nil, validation.NewValidationError("extra_tags", tag, err.Error())
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// Comment block headers. The offsite variant inserts backup_offsite after backup.
const (
	commentHeader        = "status,tenant,cluster,prom_alert_type,datazone,env,platform,role,backup,vcpus,memory,disk,hostname,ip_address,extra_tags"
	commentHeaderOffsite = "status,tenant,cluster,prom_alert_type,datazone,env,platform,role,backup,backup_offsite,vcpus,memory,disk,hostname,ip_address,extra_tags"
)

// CommentBlock renders the audit snapshot stored in the record's comments:
// a header line and one value line with the extra tags quoted exactly as
// they were submitted.
func CommentBlock(r *Record) string {
	values := []string{
		string(r.Status),
		r.Tenant.Slug,
		r.Cluster.Name,
		r.AlertType,
		r.DatazoneName(),
		r.EnvName(),
		r.Platform.Name,
		r.Role.Name,
		r.Backup.Name,
	}
	header := commentHeader
	if r.BackupOffsite != nil {
		header = commentHeaderOffsite
		values = append(values, r.BackupOffsite.Name)
	}
	values = append(values,
		strconv.Itoa(r.VCPUs),
		strconv.Itoa(r.Memory),
		strconv.Itoa(r.Disk),
		r.Hostname,
		r.Address,
		`"`+r.ExtraTagsRaw+`"`,
	)
	return header + "\n" + strings.Join(values, ",")
}
