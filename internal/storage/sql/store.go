package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// notFound maps sql.ErrNoRows to domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// requireRow returns domain.ErrNotFound when an UPDATE or DELETE touched nothing.
func requireRow(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// likePrefix escapes LIKE wildcards so s is matched literally as a prefix.
func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s) + "%"
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store and applies pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Run migrations
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if driver == "sqlite3" {
		// One writer at a time; a batch transaction must not deadlock against itself.
		db.SetMaxOpenConns(1)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ============================================
// API Keys
// ============================================

const apiKeyColumns = `id, name, key_hash, key_prefix, created_at, last_used_at, batches, last_batch_id, last_batch_at`

func createAPIKey(ctx context.Context, db dbInterface, key *domain.APIKey) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt,
		key.Batches, key.LastBatchID, key.LastBatchAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, s.db, key)
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, t.tx, key)
}

func getAPIKeyByHash(ctx context.Context, db dbInterface, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.GetContext(ctx, &key,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
	if err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, s.db, keyHash)
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, t.tx, keyHash)
}

func listAPIKeys(ctx context.Context, db dbInterface) ([]*domain.APIKey, error) {
	keys := []*domain.APIKey{}
	err := db.SelectContext(ctx, &keys,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, s.db)
}

func (t *Tx) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, t.tx)
}

func deleteAPIKey(ctx context.Context, db dbInterface, id string) error {
	return requireRow(db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id))
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, s.db, id)
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, t.tx, id)
}

func updateAPIKeyLastUsed(ctx context.Context, db dbInterface, id string) error {
	return requireRow(db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id))
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, s.db, id)
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, t.tx, id)
}

func recordAPIKeyBatch(ctx context.Context, db dbInterface, id, batchRunID string, at time.Time) error {
	return requireRow(db.ExecContext(ctx,
		`UPDATE api_keys SET batches = batches + 1, last_batch_id = $1, last_batch_at = $2 WHERE id = $3`,
		batchRunID, at, id))
}

func (s *Store) RecordAPIKeyBatch(ctx context.Context, id, batchRunID string, at time.Time) error {
	return recordAPIKeyBatch(ctx, s.db, id, batchRunID, at)
}

func (t *Tx) RecordAPIKeyBatch(ctx context.Context, id, batchRunID string, at time.Time) error {
	return recordAPIKeyBatch(ctx, t.tx, id, batchRunID, at)
}

func countAPIKeys(ctx context.Context, db dbInterface) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, s.db)
}

func (t *Tx) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, t.tx)
}

// ============================================
// Tenants
// ============================================

const tenantColumns = `id, name, slug, created_at`

func createTenant(ctx context.Context, db dbInterface, tenant *domain.Tenant) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		tenant.ID, tenant.Name, tenant.Slug, tenant.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	return createTenant(ctx, s.db, tenant)
}

func (t *Tx) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	return createTenant(ctx, t.tx, tenant)
}

func getTenant(ctx context.Context, db dbInterface, id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := db.GetContext(ctx, &tenant, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &tenant, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	return getTenant(ctx, s.db, id)
}

func (t *Tx) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	return getTenant(ctx, t.tx, id)
}

func getTenantByKey(ctx context.Context, db dbInterface, key string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.GetContext(ctx, &tenant,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1 OR name = $1 ORDER BY slug = $1 DESC LIMIT 1`, key)
	if err != nil {
		return nil, notFound(err)
	}
	return &tenant, nil
}

func (s *Store) GetTenantByKey(ctx context.Context, key string) (*domain.Tenant, error) {
	return getTenantByKey(ctx, s.db, key)
}

func (t *Tx) GetTenantByKey(ctx context.Context, key string) (*domain.Tenant, error) {
	return getTenantByKey(ctx, t.tx, key)
}

func listTenants(ctx context.Context, db dbInterface) ([]*domain.Tenant, error) {
	tenants := []*domain.Tenant{}
	err := db.SelectContext(ctx, &tenants, `SELECT `+tenantColumns+` FROM tenants ORDER BY name`)
	return tenants, err
}

func (s *Store) ListTenants(ctx context.Context) ([]*domain.Tenant, error) {
	return listTenants(ctx, s.db)
}

func (t *Tx) ListTenants(ctx context.Context) ([]*domain.Tenant, error) {
	return listTenants(ctx, t.tx)
}

// ============================================
// Sites
// ============================================

const siteColumns = `id, name, slug, created_at`

func createSite(ctx context.Context, db dbInterface, site *domain.Site) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sites (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		site.ID, site.Name, site.Slug, site.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateSite(ctx context.Context, site *domain.Site) error {
	return createSite(ctx, s.db, site)
}

func (t *Tx) CreateSite(ctx context.Context, site *domain.Site) error {
	return createSite(ctx, t.tx, site)
}

func getSite(ctx context.Context, db dbInterface, id string) (*domain.Site, error) {
	var site domain.Site
	if err := db.GetContext(ctx, &site, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &site, nil
}

func (s *Store) GetSite(ctx context.Context, id string) (*domain.Site, error) {
	return getSite(ctx, s.db, id)
}

func (t *Tx) GetSite(ctx context.Context, id string) (*domain.Site, error) {
	return getSite(ctx, t.tx, id)
}

func getSiteByKey(ctx context.Context, db dbInterface, key string) (*domain.Site, error) {
	var site domain.Site
	err := db.GetContext(ctx, &site,
		`SELECT `+siteColumns+` FROM sites WHERE slug = $1 OR name = $1 ORDER BY slug = $1 DESC LIMIT 1`, key)
	if err != nil {
		return nil, notFound(err)
	}
	return &site, nil
}

func (s *Store) GetSiteByKey(ctx context.Context, key string) (*domain.Site, error) {
	return getSiteByKey(ctx, s.db, key)
}

func (t *Tx) GetSiteByKey(ctx context.Context, key string) (*domain.Site, error) {
	return getSiteByKey(ctx, t.tx, key)
}

func listSites(ctx context.Context, db dbInterface) ([]*domain.Site, error) {
	sites := []*domain.Site{}
	err := db.SelectContext(ctx, &sites, `SELECT `+siteColumns+` FROM sites ORDER BY name`)
	return sites, err
}

func (s *Store) ListSites(ctx context.Context) ([]*domain.Site, error) {
	return listSites(ctx, s.db)
}

func (t *Tx) ListSites(ctx context.Context) ([]*domain.Site, error) {
	return listSites(ctx, t.tx)
}

// ============================================
// Clusters
// ============================================

const clusterColumns = `id, name, site_id, created_at`

func createCluster(ctx context.Context, db dbInterface, cluster *domain.Cluster) error {
	if _, err := getSite(ctx, db, cluster.SiteID); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO clusters (id, name, site_id, created_at) VALUES ($1, $2, $3, $4)`,
		cluster.ID, cluster.Name, cluster.SiteID, cluster.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateCluster(ctx context.Context, cluster *domain.Cluster) error {
	return createCluster(ctx, s.db, cluster)
}

func (t *Tx) CreateCluster(ctx context.Context, cluster *domain.Cluster) error {
	return createCluster(ctx, t.tx, cluster)
}

func getCluster(ctx context.Context, db dbInterface, id string) (*domain.Cluster, error) {
	var cluster domain.Cluster
	if err := db.GetContext(ctx, &cluster, `SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &cluster, nil
}

func (s *Store) GetCluster(ctx context.Context, id string) (*domain.Cluster, error) {
	return getCluster(ctx, s.db, id)
}

func (t *Tx) GetCluster(ctx context.Context, id string) (*domain.Cluster, error) {
	return getCluster(ctx, t.tx, id)
}

func getClusterByKey(ctx context.Context, db dbInterface, key string) (*domain.Cluster, error) {
	var cluster domain.Cluster
	if err := db.GetContext(ctx, &cluster, `SELECT `+clusterColumns+` FROM clusters WHERE name = $1`, key); err != nil {
		return nil, notFound(err)
	}
	return &cluster, nil
}

func (s *Store) GetClusterByKey(ctx context.Context, key string) (*domain.Cluster, error) {
	return getClusterByKey(ctx, s.db, key)
}

func (t *Tx) GetClusterByKey(ctx context.Context, key string) (*domain.Cluster, error) {
	return getClusterByKey(ctx, t.tx, key)
}

func listClusters(ctx context.Context, db dbInterface) ([]*domain.Cluster, error) {
	clusters := []*domain.Cluster{}
	err := db.SelectContext(ctx, &clusters, `SELECT `+clusterColumns+` FROM clusters ORDER BY name`)
	return clusters, err
}

func (s *Store) ListClusters(ctx context.Context) ([]*domain.Cluster, error) {
	return listClusters(ctx, s.db)
}

func (t *Tx) ListClusters(ctx context.Context) ([]*domain.Cluster, error) {
	return listClusters(ctx, t.tx)
}

// ============================================
// Roles
// ============================================

const roleColumns = `id, name, slug, vm_role, created_at`

func createRole(ctx context.Context, db dbInterface, role *domain.Role) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO roles (id, name, slug, vm_role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		role.ID, role.Name, role.Slug, role.VMRole, role.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateRole(ctx context.Context, role *domain.Role) error {
	return createRole(ctx, s.db, role)
}

func (t *Tx) CreateRole(ctx context.Context, role *domain.Role) error {
	return createRole(ctx, t.tx, role)
}

func getRole(ctx context.Context, db dbInterface, id string) (*domain.Role, error) {
	var role domain.Role
	if err := db.GetContext(ctx, &role, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	return getRole(ctx, s.db, id)
}

func (t *Tx) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	return getRole(ctx, t.tx, id)
}

func getRoleByKey(ctx context.Context, db dbInterface, key string) (*domain.Role, error) {
	var role domain.Role
	err := db.GetContext(ctx, &role,
		`SELECT `+roleColumns+` FROM roles WHERE name = $1 OR slug = $1 ORDER BY name = $1 DESC LIMIT 1`, key)
	if err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func (s *Store) GetRoleByKey(ctx context.Context, key string) (*domain.Role, error) {
	return getRoleByKey(ctx, s.db, key)
}

func (t *Tx) GetRoleByKey(ctx context.Context, key string) (*domain.Role, error) {
	return getRoleByKey(ctx, t.tx, key)
}

func listRoles(ctx context.Context, db dbInterface) ([]*domain.Role, error) {
	roles := []*domain.Role{}
	err := db.SelectContext(ctx, &roles, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	return roles, err
}

func (s *Store) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return listRoles(ctx, s.db)
}

func (t *Tx) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return listRoles(ctx, t.tx)
}

// ============================================
// Platforms
// ============================================

const platformColumns = `id, name, slug, created_at`

func createPlatform(ctx context.Context, db dbInterface, platform *domain.Platform) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO platforms (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		platform.ID, platform.Name, platform.Slug, platform.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreatePlatform(ctx context.Context, platform *domain.Platform) error {
	return createPlatform(ctx, s.db, platform)
}

func (t *Tx) CreatePlatform(ctx context.Context, platform *domain.Platform) error {
	return createPlatform(ctx, t.tx, platform)
}

func getPlatform(ctx context.Context, db dbInterface, id string) (*domain.Platform, error) {
	var platform domain.Platform
	if err := db.GetContext(ctx, &platform, `SELECT `+platformColumns+` FROM platforms WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &platform, nil
}

func (s *Store) GetPlatform(ctx context.Context, id string) (*domain.Platform, error) {
	return getPlatform(ctx, s.db, id)
}

func (t *Tx) GetPlatform(ctx context.Context, id string) (*domain.Platform, error) {
	return getPlatform(ctx, t.tx, id)
}

func getPlatformByKey(ctx context.Context, db dbInterface, key string) (*domain.Platform, error) {
	var platform domain.Platform
	err := db.GetContext(ctx, &platform,
		`SELECT `+platformColumns+` FROM platforms WHERE name = $1 OR slug = $1 ORDER BY name = $1 DESC LIMIT 1`, key)
	if err != nil {
		return nil, notFound(err)
	}
	return &platform, nil
}

func (s *Store) GetPlatformByKey(ctx context.Context, key string) (*domain.Platform, error) {
	return getPlatformByKey(ctx, s.db, key)
}

func (t *Tx) GetPlatformByKey(ctx context.Context, key string) (*domain.Platform, error) {
	return getPlatformByKey(ctx, t.tx, key)
}

func listPlatforms(ctx context.Context, db dbInterface) ([]*domain.Platform, error) {
	platforms := []*domain.Platform{}
	err := db.SelectContext(ctx, &platforms, `SELECT `+platformColumns+` FROM platforms ORDER BY name`)
	return platforms, err
}

func (s *Store) ListPlatforms(ctx context.Context) ([]*domain.Platform, error) {
	return listPlatforms(ctx, s.db)
}

func (t *Tx) ListPlatforms(ctx context.Context) ([]*domain.Platform, error) {
	return listPlatforms(ctx, t.tx)
}

// ============================================
// Tags
// ============================================

const tagColumns = `id, name, slug, created_at`

func createTag(ctx context.Context, db dbInterface, tag *domain.Tag) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO tags (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		tag.ID, tag.Name, tag.Slug, tag.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	return createTag(ctx, s.db, tag)
}

func (t *Tx) CreateTag(ctx context.Context, tag *domain.Tag) error {
	return createTag(ctx, t.tx, tag)
}

func getTagByKey(ctx context.Context, db dbInterface, key string) (*domain.Tag, error) {
	var tag domain.Tag
	err := db.GetContext(ctx, &tag,
		`SELECT `+tagColumns+` FROM tags WHERE name = $1 OR slug = $1 ORDER BY name = $1 DESC LIMIT 1`, key)
	if err != nil {
		return nil, notFound(err)
	}
	return &tag, nil
}

func (s *Store) GetTagByKey(ctx context.Context, key string) (*domain.Tag, error) {
	return getTagByKey(ctx, s.db, key)
}

func (t *Tx) GetTagByKey(ctx context.Context, key string) (*domain.Tag, error) {
	return getTagByKey(ctx, t.tx, key)
}

func listTags(ctx context.Context, db dbInterface) ([]*domain.Tag, error) {
	tags := []*domain.Tag{}
	err := db.SelectContext(ctx, &tags, `SELECT `+tagColumns+` FROM tags ORDER BY name`)
	return tags, err
}

func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	return listTags(ctx, s.db)
}

func (t *Tx) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	return listTags(ctx, t.tx)
}

// tagIDs maps tag names to IDs, preserving order.
func tagIDs(ctx context.Context, db dbInterface, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		var id string
		if err := db.GetContext(ctx, &id, `SELECT id FROM tags WHERE name = $1`, name); err != nil {
			return nil, notFound(err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ============================================
// VRFs
// ============================================

func createVRF(ctx context.Context, db dbInterface, vrf *domain.VRF) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO vrfs (id, name, created_at) VALUES ($1, $2, $3)`,
		vrf.ID, vrf.Name, vrf.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateVRF(ctx context.Context, vrf *domain.VRF) error {
	return createVRF(ctx, s.db, vrf)
}

func (t *Tx) CreateVRF(ctx context.Context, vrf *domain.VRF) error {
	return createVRF(ctx, t.tx, vrf)
}

func getVRFByKey(ctx context.Context, db dbInterface, key string) (*domain.VRF, error) {
	var vrf domain.VRF
	if err := db.GetContext(ctx, &vrf, `SELECT id, name, created_at FROM vrfs WHERE name = $1`, key); err != nil {
		return nil, notFound(err)
	}
	return &vrf, nil
}

func (s *Store) GetVRFByKey(ctx context.Context, key string) (*domain.VRF, error) {
	return getVRFByKey(ctx, s.db, key)
}

func (t *Tx) GetVRFByKey(ctx context.Context, key string) (*domain.VRF, error) {
	return getVRFByKey(ctx, t.tx, key)
}

func listVRFs(ctx context.Context, db dbInterface) ([]*domain.VRF, error) {
	vrfs := []*domain.VRF{}
	err := db.SelectContext(ctx, &vrfs, `SELECT id, name, created_at FROM vrfs ORDER BY name`)
	return vrfs, err
}

func (s *Store) ListVRFs(ctx context.Context) ([]*domain.VRF, error) {
	return listVRFs(ctx, s.db)
}

func (t *Tx) ListVRFs(ctx context.Context) ([]*domain.VRF, error) {
	return listVRFs(ctx, t.tx)
}

// ============================================
// VLANs
// ============================================

const vlanColumns = `id, vid, name, site_id, created_at`

func createVLAN(ctx context.Context, db dbInterface, vlan *domain.VLAN) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO vlans (id, vid, name, site_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		vlan.ID, vlan.VID, vlan.Name, vlan.SiteID, vlan.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateVLAN(ctx context.Context, vlan *domain.VLAN) error {
	return createVLAN(ctx, s.db, vlan)
}

func (t *Tx) CreateVLAN(ctx context.Context, vlan *domain.VLAN) error {
	return createVLAN(ctx, t.tx, vlan)
}

func getVLAN(ctx context.Context, db dbInterface, id string) (*domain.VLAN, error) {
	var vlan domain.VLAN
	if err := db.GetContext(ctx, &vlan, `SELECT `+vlanColumns+` FROM vlans WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &vlan, nil
}

func (s *Store) GetVLAN(ctx context.Context, id string) (*domain.VLAN, error) {
	return getVLAN(ctx, s.db, id)
}

func (t *Tx) GetVLAN(ctx context.Context, id string) (*domain.VLAN, error) {
	return getVLAN(ctx, t.tx, id)
}

func getVLANByVID(ctx context.Context, db dbInterface, siteID string, vid int) (*domain.VLAN, error) {
	var vlan domain.VLAN
	err := db.GetContext(ctx, &vlan,
		`SELECT `+vlanColumns+` FROM vlans WHERE site_id = $1 AND vid = $2`, siteID, vid)
	if err != nil {
		return nil, notFound(err)
	}
	return &vlan, nil
}

func (s *Store) GetVLANByVID(ctx context.Context, siteID string, vid int) (*domain.VLAN, error) {
	return getVLANByVID(ctx, s.db, siteID, vid)
}

func (t *Tx) GetVLANByVID(ctx context.Context, siteID string, vid int) (*domain.VLAN, error) {
	return getVLANByVID(ctx, t.tx, siteID, vid)
}

func listVLANs(ctx context.Context, db dbInterface) ([]*domain.VLAN, error) {
	vlans := []*domain.VLAN{}
	err := db.SelectContext(ctx, &vlans, `SELECT `+vlanColumns+` FROM vlans ORDER BY site_id, vid`)
	return vlans, err
}

func (s *Store) ListVLANs(ctx context.Context) ([]*domain.VLAN, error) {
	return listVLANs(ctx, s.db)
}

func (t *Tx) ListVLANs(ctx context.Context) ([]*domain.VLAN, error) {
	return listVLANs(ctx, t.tx)
}

// ============================================
// Prefixes
// ============================================

const prefixColumns = `id, prefix, site_id, vlan_id, vrf_id, is_pool, created_at, updated_at`

func createPrefix(ctx context.Context, db dbInterface, prefix *domain.Prefix) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO prefixes (id, prefix, site_id, vlan_id, vrf_id, is_pool, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		prefix.ID, prefix.Prefix, prefix.SiteID, prefix.VLANID, prefix.VRFID, prefix.IsPool,
		prefix.CreatedAt, prefix.UpdatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreatePrefix(ctx context.Context, prefix *domain.Prefix) error {
	return createPrefix(ctx, s.db, prefix)
}

func (t *Tx) CreatePrefix(ctx context.Context, prefix *domain.Prefix) error {
	return createPrefix(ctx, t.tx, prefix)
}

func getPrefixByVLAN(ctx context.Context, db dbInterface, siteID, vlanID string) (*domain.Prefix, error) {
	var prefix domain.Prefix
	err := db.GetContext(ctx, &prefix,
		`SELECT `+prefixColumns+` FROM prefixes WHERE site_id = $1 AND vlan_id = $2`, siteID, vlanID)
	if err != nil {
		return nil, notFound(err)
	}
	return &prefix, nil
}

func (s *Store) GetPrefixByVLAN(ctx context.Context, siteID, vlanID string) (*domain.Prefix, error) {
	return getPrefixByVLAN(ctx, s.db, siteID, vlanID)
}

func (t *Tx) GetPrefixByVLAN(ctx context.Context, siteID, vlanID string) (*domain.Prefix, error) {
	return getPrefixByVLAN(ctx, t.tx, siteID, vlanID)
}

func getPrefix(ctx context.Context, db dbInterface, siteID, cidr string) (*domain.Prefix, error) {
	var prefix domain.Prefix
	err := db.GetContext(ctx, &prefix,
		`SELECT `+prefixColumns+` FROM prefixes WHERE site_id = $1 AND prefix = $2`, siteID, cidr)
	if err != nil {
		return nil, notFound(err)
	}
	return &prefix, nil
}

func (s *Store) GetPrefix(ctx context.Context, siteID, cidr string) (*domain.Prefix, error) {
	return getPrefix(ctx, s.db, siteID, cidr)
}

func (t *Tx) GetPrefix(ctx context.Context, siteID, cidr string) (*domain.Prefix, error) {
	return getPrefix(ctx, t.tx, siteID, cidr)
}

func listPrefixes(ctx context.Context, db dbInterface) ([]*domain.Prefix, error) {
	prefixes := []*domain.Prefix{}
	err := db.SelectContext(ctx, &prefixes, `SELECT `+prefixColumns+` FROM prefixes ORDER BY prefix`)
	return prefixes, err
}

func (s *Store) ListPrefixes(ctx context.Context) ([]*domain.Prefix, error) {
	return listPrefixes(ctx, s.db)
}

func (t *Tx) ListPrefixes(ctx context.Context) ([]*domain.Prefix, error) {
	return listPrefixes(ctx, t.tx)
}

func updatePrefix(ctx context.Context, db dbInterface, prefix *domain.Prefix) error {
	prefix.UpdatedAt = time.Now()
	return requireRow(db.ExecContext(ctx,
		`UPDATE prefixes SET prefix = $1, vlan_id = $2, vrf_id = $3, is_pool = $4, updated_at = $5 WHERE id = $6`,
		prefix.Prefix, prefix.VLANID, prefix.VRFID, prefix.IsPool, prefix.UpdatedAt, prefix.ID))
}

func (s *Store) UpdatePrefix(ctx context.Context, prefix *domain.Prefix) error {
	return updatePrefix(ctx, s.db, prefix)
}

func (t *Tx) UpdatePrefix(ctx context.Context, prefix *domain.Prefix) error {
	return updatePrefix(ctx, t.tx, prefix)
}

// ============================================
// IP Addresses
// ============================================

const ipAddressColumns = `id, address, vrf_id, tenant_id, dns_name, assigned_object_type, assigned_object_id, created_at, updated_at`

func createIPAddress(ctx context.Context, db dbInterface, addr *domain.IPAddress) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO ip_addresses (id, address, vrf_id, tenant_id, dns_name, assigned_object_type, assigned_object_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		addr.ID, addr.Address, addr.VRFID, addr.TenantID, addr.DNSName,
		addr.AssignedObjectType, addr.AssignedObjectID, addr.CreatedAt, addr.UpdatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateIPAddress(ctx context.Context, addr *domain.IPAddress) error {
	return createIPAddress(ctx, s.db, addr)
}

func (t *Tx) CreateIPAddress(ctx context.Context, addr *domain.IPAddress) error {
	return createIPAddress(ctx, t.tx, addr)
}

func getIPAddress(ctx context.Context, db dbInterface, id string) (*domain.IPAddress, error) {
	var addr domain.IPAddress
	if err := db.GetContext(ctx, &addr, `SELECT `+ipAddressColumns+` FROM ip_addresses WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &addr, nil
}

func (s *Store) GetIPAddress(ctx context.Context, id string) (*domain.IPAddress, error) {
	return getIPAddress(ctx, s.db, id)
}

func (t *Tx) GetIPAddress(ctx context.Context, id string) (*domain.IPAddress, error) {
	return getIPAddress(ctx, t.tx, id)
}

func findIPAddresses(ctx context.Context, db dbInterface, address string) ([]*domain.IPAddress, error) {
	host, _, _ := strings.Cut(address, "/")
	addrs := []*domain.IPAddress{}
	err := db.SelectContext(ctx, &addrs,
		`SELECT `+ipAddressColumns+` FROM ip_addresses WHERE address = $1 OR address LIKE $2 ESCAPE '\'`,
		host, likePrefix(host+"/"))
	return addrs, err
}

func (s *Store) FindIPAddresses(ctx context.Context, address string) ([]*domain.IPAddress, error) {
	return findIPAddresses(ctx, s.db, address)
}

func (t *Tx) FindIPAddresses(ctx context.Context, address string) ([]*domain.IPAddress, error) {
	return findIPAddresses(ctx, t.tx, address)
}

func listIPAddresses(ctx context.Context, db dbInterface) ([]*domain.IPAddress, error) {
	addrs := []*domain.IPAddress{}
	err := db.SelectContext(ctx, &addrs, `SELECT `+ipAddressColumns+` FROM ip_addresses ORDER BY address`)
	return addrs, err
}

func (s *Store) ListIPAddresses(ctx context.Context) ([]*domain.IPAddress, error) {
	return listIPAddresses(ctx, s.db)
}

func (t *Tx) ListIPAddresses(ctx context.Context) ([]*domain.IPAddress, error) {
	return listIPAddresses(ctx, t.tx)
}

func updateIPAddress(ctx context.Context, db dbInterface, addr *domain.IPAddress) error {
	addr.UpdatedAt = time.Now()
	err := requireRow(db.ExecContext(ctx,
		`UPDATE ip_addresses SET address = $1, vrf_id = $2, tenant_id = $3, dns_name = $4,
		 assigned_object_type = $5, assigned_object_id = $6, updated_at = $7 WHERE id = $8`,
		addr.Address, addr.VRFID, addr.TenantID, addr.DNSName,
		addr.AssignedObjectType, addr.AssignedObjectID, addr.UpdatedAt, addr.ID))
	return wrapUniqueError(err)
}

func (s *Store) UpdateIPAddress(ctx context.Context, addr *domain.IPAddress) error {
	return updateIPAddress(ctx, s.db, addr)
}

func (t *Tx) UpdateIPAddress(ctx context.Context, addr *domain.IPAddress) error {
	return updateIPAddress(ctx, t.tx, addr)
}

func deleteIPAddress(ctx context.Context, db dbInterface, id string) error {
	if _, err := db.ExecContext(ctx, `UPDATE virtual_machines SET primary_ip4_id = NULL WHERE primary_ip4_id = $1`, id); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM service_ip_addresses WHERE ip_address_id = $1`, id); err != nil {
		return err
	}
	return requireRow(db.ExecContext(ctx, `DELETE FROM ip_addresses WHERE id = $1`, id))
}

func (s *Store) DeleteIPAddress(ctx context.Context, id string) error {
	return deleteIPAddress(ctx, s.db, id)
}

func (t *Tx) DeleteIPAddress(ctx context.Context, id string) error {
	return deleteIPAddress(ctx, t.tx, id)
}

// ============================================
// Virtual Machines
// ============================================

const vmColumns = `id, name, status, cluster_id, site_id, tenant_id, role_id, platform_id, vcpus, memory, disk, comments, primary_ip4_id, created_at, updated_at`

func setVMTags(ctx context.Context, db dbInterface, vmID string, names []string) error {
	ids, err := tagIDs(ctx, db, names)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM vm_tags WHERE vm_id = $1`, vmID); err != nil {
		return err
	}
	for i, id := range ids {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO vm_tags (vm_id, tag_id, position) VALUES ($1, $2, $3)`, vmID, id, i); err != nil {
			return wrapUniqueError(err)
		}
	}
	return nil
}

func loadVMTags(ctx context.Context, db dbInterface, vm *domain.VirtualMachine) error {
	vm.Tags = []string{}
	return db.SelectContext(ctx, &vm.Tags,
		`SELECT t.name FROM tags t JOIN vm_tags vt ON vt.tag_id = t.id WHERE vt.vm_id = $1 ORDER BY vt.position`, vm.ID)
}

func createVirtualMachine(ctx context.Context, db dbInterface, vm *domain.VirtualMachine) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO virtual_machines (`+vmColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		vm.ID, vm.Name, vm.Status, vm.ClusterID, vm.SiteID, vm.TenantID, vm.RoleID, vm.PlatformID,
		vm.VCPUs, vm.Memory, vm.Disk, vm.Comments, vm.PrimaryIP4ID, vm.CreatedAt, vm.UpdatedAt)
	if err != nil {
		return wrapUniqueError(err)
	}
	return setVMTags(ctx, db, vm.ID, vm.Tags)
}

func (s *Store) CreateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error {
	return createVirtualMachine(ctx, s.db, vm)
}

func (t *Tx) CreateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error {
	return createVirtualMachine(ctx, t.tx, vm)
}

func getVirtualMachine(ctx context.Context, db dbInterface, where string, arg any) (*domain.VirtualMachine, error) {
	var vm domain.VirtualMachine
	if err := db.GetContext(ctx, &vm, `SELECT `+vmColumns+` FROM virtual_machines WHERE `+where, arg); err != nil {
		return nil, notFound(err)
	}
	if err := loadVMTags(ctx, db, &vm); err != nil {
		return nil, err
	}
	return &vm, nil
}

func (s *Store) GetVirtualMachine(ctx context.Context, id string) (*domain.VirtualMachine, error) {
	return getVirtualMachine(ctx, s.db, "id = $1", id)
}

func (t *Tx) GetVirtualMachine(ctx context.Context, id string) (*domain.VirtualMachine, error) {
	return getVirtualMachine(ctx, t.tx, "id = $1", id)
}

func (s *Store) GetVirtualMachineByName(ctx context.Context, name string) (*domain.VirtualMachine, error) {
	return getVirtualMachine(ctx, s.db, "name = $1", name)
}

func (t *Tx) GetVirtualMachineByName(ctx context.Context, name string) (*domain.VirtualMachine, error) {
	return getVirtualMachine(ctx, t.tx, "name = $1", name)
}

func listVirtualMachinesByNamePrefix(ctx context.Context, db dbInterface, prefix string) ([]*domain.VirtualMachine, error) {
	var candidates []*domain.VirtualMachine
	err := db.SelectContext(ctx, &candidates,
		`SELECT `+vmColumns+` FROM virtual_machines WHERE name LIKE $1 ESCAPE '\' ORDER BY name`, likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	// SQLite's LIKE is case-insensitive for ASCII.
	vms := make([]*domain.VirtualMachine, 0, len(candidates))
	for _, vm := range candidates {
		if !strings.HasPrefix(vm.Name, prefix) {
			continue
		}
		if err := loadVMTags(ctx, db, vm); err != nil {
			return nil, err
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

func (s *Store) ListVirtualMachines(ctx context.Context) ([]*domain.VirtualMachine, error) {
	return listVirtualMachinesByNamePrefix(ctx, s.db, "")
}

func (t *Tx) ListVirtualMachines(ctx context.Context) ([]*domain.VirtualMachine, error) {
	return listVirtualMachinesByNamePrefix(ctx, t.tx, "")
}

func (s *Store) ListVirtualMachinesByNamePrefix(ctx context.Context, prefix string) ([]*domain.VirtualMachine, error) {
	return listVirtualMachinesByNamePrefix(ctx, s.db, prefix)
}

func (t *Tx) ListVirtualMachinesByNamePrefix(ctx context.Context, prefix string) ([]*domain.VirtualMachine, error) {
	return listVirtualMachinesByNamePrefix(ctx, t.tx, prefix)
}

func updateVirtualMachine(ctx context.Context, db dbInterface, vm *domain.VirtualMachine) error {
	vm.UpdatedAt = time.Now()
	err := requireRow(db.ExecContext(ctx,
		`UPDATE virtual_machines SET name = $1, status = $2, cluster_id = $3, site_id = $4, tenant_id = $5,
		 role_id = $6, platform_id = $7, vcpus = $8, memory = $9, disk = $10, comments = $11,
		 primary_ip4_id = $12, updated_at = $13 WHERE id = $14`,
		vm.Name, vm.Status, vm.ClusterID, vm.SiteID, vm.TenantID, vm.RoleID, vm.PlatformID,
		vm.VCPUs, vm.Memory, vm.Disk, vm.Comments, vm.PrimaryIP4ID, vm.UpdatedAt, vm.ID))
	if err != nil {
		return wrapUniqueError(err)
	}
	return setVMTags(ctx, db, vm.ID, vm.Tags)
}

func (s *Store) UpdateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error {
	return updateVirtualMachine(ctx, s.db, vm)
}

func (t *Tx) UpdateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error {
	return updateVirtualMachine(ctx, t.tx, vm)
}

// deleteVirtualMachine removes dependent rows explicitly; SQLite only honours
// ON DELETE CASCADE when foreign keys are enabled on the connection.
func deleteVirtualMachine(ctx context.Context, db dbInterface, id string) error {
	stmts := []string{
		`DELETE FROM service_tags WHERE service_id IN (SELECT id FROM services WHERE virtual_machine_id = $1)`,
		`DELETE FROM service_ip_addresses WHERE service_id IN (SELECT id FROM services WHERE virtual_machine_id = $1)`,
		`DELETE FROM services WHERE virtual_machine_id = $1`,
		`DELETE FROM vm_interfaces WHERE virtual_machine_id = $1`,
		`DELETE FROM vm_tags WHERE vm_id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return requireRow(db.ExecContext(ctx, `DELETE FROM virtual_machines WHERE id = $1`, id))
}

func (s *Store) DeleteVirtualMachine(ctx context.Context, id string) error {
	return deleteVirtualMachine(ctx, s.db, id)
}

func (t *Tx) DeleteVirtualMachine(ctx context.Context, id string) error {
	return deleteVirtualMachine(ctx, t.tx, id)
}

// ============================================
// VM Interfaces
// ============================================

const vmInterfaceColumns = `id, virtual_machine_id, name, mtu, mode, untagged_vlan_id, created_at`

func createVMInterface(ctx context.Context, db dbInterface, iface *domain.VMInterface) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO vm_interfaces (`+vmInterfaceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		iface.ID, iface.VirtualMachineID, iface.Name, iface.MTU, iface.Mode, iface.UntaggedVLANID, iface.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateVMInterface(ctx context.Context, iface *domain.VMInterface) error {
	return createVMInterface(ctx, s.db, iface)
}

func (t *Tx) CreateVMInterface(ctx context.Context, iface *domain.VMInterface) error {
	return createVMInterface(ctx, t.tx, iface)
}

func listVMInterfaces(ctx context.Context, db dbInterface, vmID string) ([]*domain.VMInterface, error) {
	ifaces := []*domain.VMInterface{}
	err := db.SelectContext(ctx, &ifaces,
		`SELECT `+vmInterfaceColumns+` FROM vm_interfaces WHERE virtual_machine_id = $1 ORDER BY name`, vmID)
	return ifaces, err
}

func (s *Store) ListVMInterfaces(ctx context.Context, vmID string) ([]*domain.VMInterface, error) {
	return listVMInterfaces(ctx, s.db, vmID)
}

func (t *Tx) ListVMInterfaces(ctx context.Context, vmID string) ([]*domain.VMInterface, error) {
	return listVMInterfaces(ctx, t.tx, vmID)
}

func deleteVMInterface(ctx context.Context, db dbInterface, id string) error {
	if _, err := db.ExecContext(ctx,
		`UPDATE ip_addresses SET assigned_object_type = '', assigned_object_id = ''
		 WHERE assigned_object_type = $1 AND assigned_object_id = $2`,
		domain.AssignedVMInterface, id); err != nil {
		return err
	}
	return requireRow(db.ExecContext(ctx, `DELETE FROM vm_interfaces WHERE id = $1`, id))
}

func (s *Store) DeleteVMInterface(ctx context.Context, id string) error {
	return deleteVMInterface(ctx, s.db, id)
}

func (t *Tx) DeleteVMInterface(ctx context.Context, id string) error {
	return deleteVMInterface(ctx, t.tx, id)
}

// ============================================
// Services
// ============================================

const serviceColumns = `id, virtual_machine_id, name, protocol, ports, custom_fields, created_at`

func createService(ctx context.Context, db dbInterface, svc *domain.Service) error {
	ids, err := tagIDs(ctx, db, svc.Tags)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO services (`+serviceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		svc.ID, svc.VirtualMachineID, svc.Name, svc.Protocol, svc.Ports, svc.CustomFields, svc.CreatedAt)
	if err != nil {
		return wrapUniqueError(err)
	}
	for i, id := range ids {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO service_tags (service_id, tag_id, position) VALUES ($1, $2, $3)`, svc.ID, id, i); err != nil {
			return wrapUniqueError(err)
		}
	}
	for _, addrID := range svc.IPAddressIDs {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO service_ip_addresses (service_id, ip_address_id) VALUES ($1, $2)`, svc.ID, addrID); err != nil {
			return wrapUniqueError(err)
		}
	}
	return nil
}

func (s *Store) CreateService(ctx context.Context, svc *domain.Service) error {
	return createService(ctx, s.db, svc)
}

func (t *Tx) CreateService(ctx context.Context, svc *domain.Service) error {
	return createService(ctx, t.tx, svc)
}

func listServices(ctx context.Context, db dbInterface, vmID string) ([]*domain.Service, error) {
	services := []*domain.Service{}
	err := db.SelectContext(ctx, &services,
		`SELECT `+serviceColumns+` FROM services WHERE virtual_machine_id = $1 ORDER BY name`, vmID)
	if err != nil {
		return nil, err
	}
	for _, svc := range services {
		svc.Tags = []string{}
		if err := db.SelectContext(ctx, &svc.Tags,
			`SELECT t.name FROM tags t JOIN service_tags st ON st.tag_id = t.id WHERE st.service_id = $1 ORDER BY st.position`,
			svc.ID); err != nil {
			return nil, err
		}
		svc.IPAddressIDs = []string{}
		if err := db.SelectContext(ctx, &svc.IPAddressIDs,
			`SELECT ip_address_id FROM service_ip_addresses WHERE service_id = $1`, svc.ID); err != nil {
			return nil, err
		}
	}
	return services, nil
}

func (s *Store) ListServices(ctx context.Context, vmID string) ([]*domain.Service, error) {
	return listServices(ctx, s.db, vmID)
}

func (t *Tx) ListServices(ctx context.Context, vmID string) ([]*domain.Service, error) {
	return listServices(ctx, t.tx, vmID)
}

func deleteService(ctx context.Context, db dbInterface, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM service_tags WHERE service_id = $1`, id); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM service_ip_addresses WHERE service_id = $1`, id); err != nil {
		return err
	}
	return requireRow(db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id))
}

func (s *Store) DeleteService(ctx context.Context, id string) error {
	return deleteService(ctx, s.db, id)
}

func (t *Tx) DeleteService(ctx context.Context, id string) error {
	return deleteService(ctx, t.tx, id)
}

// ============================================
// Batch Runs
// ============================================

const batchRunColumns = `id, commit_changes, submitted_by, api_key_id, payload, rows_total, succeeded, failed, outcomes, started_at, finished_at`

func createBatchRun(ctx context.Context, db dbInterface, run *domain.BatchRun) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO batch_runs (`+batchRunColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Commit, run.SubmittedBy, run.APIKeyID, run.Payload, run.Rows, run.Succeeded, run.Failed,
		run.Outcomes, run.StartedAt, run.FinishedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateBatchRun(ctx context.Context, run *domain.BatchRun) error {
	return createBatchRun(ctx, s.db, run)
}

func (t *Tx) CreateBatchRun(ctx context.Context, run *domain.BatchRun) error {
	return createBatchRun(ctx, t.tx, run)
}

func getBatchRun(ctx context.Context, db dbInterface, id string) (*domain.BatchRun, error) {
	var run domain.BatchRun
	if err := db.GetContext(ctx, &run, `SELECT `+batchRunColumns+` FROM batch_runs WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (s *Store) GetBatchRun(ctx context.Context, id string) (*domain.BatchRun, error) {
	return getBatchRun(ctx, s.db, id)
}

func (t *Tx) GetBatchRun(ctx context.Context, id string) (*domain.BatchRun, error) {
	return getBatchRun(ctx, t.tx, id)
}

func listBatchRuns(ctx context.Context, db dbInterface, limit, offset int) ([]*domain.BatchRun, error) {
	runs := []*domain.BatchRun{}
	err := db.SelectContext(ctx, &runs,
		`SELECT `+batchRunColumns+` FROM batch_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	return runs, err
}

func (s *Store) ListBatchRuns(ctx context.Context, limit, offset int) ([]*domain.BatchRun, error) {
	return listBatchRuns(ctx, s.db, limit, offset)
}

func (t *Tx) ListBatchRuns(ctx context.Context, limit, offset int) ([]*domain.BatchRun, error) {
	return listBatchRuns(ctx, t.tx, limit, offset)
}
